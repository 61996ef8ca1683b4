package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/teal-fm/beacon/db"
)

// ApiKey represents an API key for authenticating requests. Devices running
// the notification normalizer use these on the ingest path.
type ApiKey struct {
	ID        string
	UserID    string
	Name      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Manager manages API keys
type Manager struct {
	db      *db.DB
	apiKeys map[string]*ApiKey
	mu      sync.RWMutex
}

// NewApiKeyManager creates a new API key manager
func NewApiKeyManager(database *db.DB) *Manager {
	// Initialize API keys table if it doesn't exist
	_, err := database.Exec(`
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMP,
		expires_at TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`)

	if err != nil {
		log.Printf("Error creating api_keys table: %v", err)
	}

	return &Manager{
		db:      database,
		apiKeys: make(map[string]*ApiKey),
	}
}

// CreateApiKey creates a new API key for a user
func (am *Manager) CreateApiKey(userID string, name string, validityDays int) (*ApiKey, error) {
	am.mu.Lock()
	defer am.mu.Unlock()

	// Generate random API key
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	apiKeyID := base64.URLEncoding.EncodeToString(b)

	now := time.Now().UTC()
	expiresAt := now.AddDate(0, 0, validityDays)

	apiKey := &ApiKey{
		ID:        apiKeyID,
		UserID:    userID,
		Name:      name,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	am.apiKeys[apiKeyID] = apiKey

	_, err := am.db.Exec(`
	INSERT INTO api_keys (id, user_id, name, created_at, expires_at)
	VALUES (?, ?, ?, ?, ?)`,
		apiKeyID, userID, name, now, expiresAt)

	if err != nil {
		return nil, err
	}

	return apiKey, nil
}

// GetApiKey retrieves an API key by ID
func (am *Manager) GetApiKey(apiKeyID string) (*ApiKey, bool) {
	// First check in-memory cache
	am.mu.RLock()
	apiKey, exists := am.apiKeys[apiKeyID]
	am.mu.RUnlock()

	if exists {
		if time.Now().UTC().After(apiKey.ExpiresAt) {
			if err := am.DeleteApiKey(apiKeyID); err != nil {
				log.Printf("Error deleting an expired API key: %v", err)
			}
			return nil, false
		}
		return apiKey, true
	}

	// If not in memory, check database
	apiKey = &ApiKey{ID: apiKeyID}
	err := am.db.QueryRow(`
	SELECT user_id, name, created_at, expires_at
	FROM api_keys WHERE id = ?`, apiKeyID).Scan(
		&apiKey.UserID, &apiKey.Name, &apiKey.CreatedAt, &apiKey.ExpiresAt)

	if err != nil {
		return nil, false
	}

	if time.Now().UTC().After(apiKey.ExpiresAt) {
		if err := am.DeleteApiKey(apiKeyID); err != nil {
			log.Printf("Error deleting an expired API key: %v", err)
		}
		return nil, false
	}

	am.mu.Lock()
	am.apiKeys[apiKeyID] = apiKey
	am.mu.Unlock()

	return apiKey, true
}

// DeleteApiKey removes an API key
func (am *Manager) DeleteApiKey(apiKeyID string) error {
	am.mu.Lock()
	delete(am.apiKeys, apiKeyID)
	am.mu.Unlock()

	_, err := am.db.Exec("DELETE FROM api_keys WHERE id = ?", apiKeyID)
	return err
}

// ExtractApiKey extracts the API key from the request
func ExtractApiKey(r *http.Request) (string, error) {
	// Try to get from Authorization header first
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && (strings.ToLower(parts[0]) == "bearer" || strings.ToLower(parts[0]) == "token") {
			return parts[1], nil
		}
	}

	// Then try from query parameter
	apiKey := r.URL.Query().Get("api_key")
	if apiKey != "" {
		return apiKey, nil
	}

	return "", errors.New("no API key found in request")
}
