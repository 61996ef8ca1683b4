package db

import (
	"database/sql"

	"github.com/teal-fm/beacon/models"
)

// SetProfileMeta overwrites a user's profile meta document.
func (db *DB) SetProfileMeta(uid string, meta models.ProfileMeta) error {
	_, err := db.Exec(`
	INSERT INTO profile_meta (uid, photo_url, photo_b64)
	VALUES (?, ?, ?)
	ON CONFLICT(uid) DO UPDATE SET
		photo_url = excluded.photo_url,
		photo_b64 = excluded.photo_b64`,
		uid, meta.PhotoURL, meta.PhotoB64)

	if err != nil {
		return err
	}

	db.notifyProfile(uid, meta)
	return nil
}

// GetProfileMeta retrieves a user's profile meta, nil when absent.
func (db *DB) GetProfileMeta(uid string) (*models.ProfileMeta, error) {
	meta := &models.ProfileMeta{}

	err := db.QueryRow(`
	SELECT photo_url, photo_b64
	FROM profile_meta WHERE uid = ?`, uid).Scan(&meta.PhotoURL, &meta.PhotoB64)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return meta, nil
}
