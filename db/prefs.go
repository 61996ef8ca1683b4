package db

import "database/sql"

// SetPref stores one key/value preference for a user.
func (db *DB) SetPref(uid, key, value string) error {
	_, err := db.Exec(`
	INSERT INTO prefs (uid, key, value)
	VALUES (?, ?, ?)
	ON CONFLICT(uid, key) DO UPDATE SET value = excluded.value`,
		uid, key, value)
	return err
}

// GetPref reads one preference; ok is false when the key is unset.
func (db *DB) GetPref(uid, key string) (string, bool, error) {
	var value string

	err := db.QueryRow(`SELECT value FROM prefs WHERE uid = ? AND key = ?`, uid, key).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}

	if err != nil {
		return "", false, err
	}

	return value, true, nil
}
