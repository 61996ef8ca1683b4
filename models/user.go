package models

import "time"

// User represents a user of the application
type User struct {
	ID        string
	Username  string
	Email     *string // Use pointer for nullable fields
	CreatedAt time.Time
	UpdatedAt time.Time
}
