package db

import (
	"database/sql"

	"github.com/teal-fm/beacon/models"
)

// UpsertPresence fully overwrites the user's presence document and fans the
// new value out to live watches.
func (db *DB) UpsertPresence(rec models.PresenceRecord) error {
	_, err := db.Exec(`
	INSERT INTO presence (uid, display_name, track, artist, service, timestamp, art, art_url)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(uid) DO UPDATE SET
		display_name = excluded.display_name,
		track = excluded.track,
		artist = excluded.artist,
		service = excluded.service,
		timestamp = excluded.timestamp,
		art = excluded.art,
		art_url = excluded.art_url`,
		rec.UID, rec.DisplayName, rec.Track, rec.Artist, rec.Service, rec.Timestamp, rec.ArtB64, rec.ArtURL)

	if err != nil {
		return err
	}

	db.notifyPresence(rec)
	return nil
}

// GetPresence retrieves a user's presence document, nil when absent.
func (db *DB) GetPresence(uid string) (*models.PresenceRecord, error) {
	rec := &models.PresenceRecord{}

	err := db.QueryRow(`
	SELECT uid, display_name, track, artist, service, timestamp, art, art_url
	FROM presence WHERE uid = ?`, uid).Scan(
		&rec.UID, &rec.DisplayName, &rec.Track, &rec.Artist,
		&rec.Service, &rec.Timestamp, &rec.ArtB64, &rec.ArtURL)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return rec, nil
}
