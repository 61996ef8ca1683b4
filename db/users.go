package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/teal-fm/beacon/models"
)

// CreateUser adds a new user and returns the store-assigned id.
func (db *DB) CreateUser(user *models.User) (string, error) {
	now := time.Now().UTC()
	id := uuid.NewString()

	_, err := db.Exec(`
	INSERT INTO users (id, username, email, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)`,
		id, user.Username, user.Email, now, now)

	if err != nil {
		return "", err
	}

	return id, nil
}

// GetUserByID retrieves a user, nil when absent.
func (db *DB) GetUserByID(uid string) (*models.User, error) {
	user := &models.User{}

	err := db.QueryRow(`
	SELECT id, username, email, created_at, updated_at
	FROM users WHERE id = ?`, uid).Scan(
		&user.ID, &user.Username, &user.Email, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	return user, nil
}
