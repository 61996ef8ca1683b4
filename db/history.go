package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/teal-fm/beacon/models"
)

// AddHistory stores a finished play under the owner's history and returns
// the store-assigned id. No client-side idempotency key is attached.
func (db *DB) AddHistory(ownerUID string, entry models.HistoryEntry) (string, error) {
	id := uuid.NewString()

	_, err := db.Exec(`
	INSERT INTO history (id, owner_uid, track, artist, service, ts, art, art_url)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ownerUID, entry.Track, entry.Artist, entry.Service, entry.Ts, entry.ArtB64, entry.ArtURL)

	if err != nil {
		return "", err
	}

	db.notifyHistory(ownerUID)
	return id, nil
}

// DeleteHistory removes one history entry owned by ownerUID.
func (db *DB) DeleteHistory(ownerUID, id string) error {
	res, err := db.Exec(`DELETE FROM history WHERE id = ? AND owner_uid = ?`, id, ownerUID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("history entry %s not found for owner %s", id, ownerUID)
	}

	db.notifyHistory(ownerUID)
	return nil
}

// GetHistoryPage returns the owner's most recent entries, ts descending.
func (db *DB) GetHistoryPage(ownerUID string, limit int) ([]models.HistoryEntry, error) {
	rows, err := db.Query(`
	SELECT id, track, artist, service, ts, art, art_url
	FROM history
	WHERE owner_uid = ?
	ORDER BY ts DESC
	LIMIT ?`, ownerUID, limit)

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.HistoryEntry

	for rows.Next() {
		var entry models.HistoryEntry
		err := rows.Scan(
			&entry.ID,
			&entry.Track,
			&entry.Artist,
			&entry.Service,
			&entry.Ts,
			&entry.ArtB64,
			&entry.ArtURL,
		)

		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// GetHistoryEntry retrieves a single entry, nil when absent.
func (db *DB) GetHistoryEntry(ownerUID, id string) (*models.HistoryEntry, error) {
	entry := &models.HistoryEntry{}

	err := db.QueryRow(`
	SELECT id, track, artist, service, ts, art, art_url
	FROM history WHERE id = ? AND owner_uid = ?`, id, ownerUID).Scan(
		&entry.ID, &entry.Track, &entry.Artist, &entry.Service,
		&entry.Ts, &entry.ArtB64, &entry.ArtURL)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return entry, nil
}
