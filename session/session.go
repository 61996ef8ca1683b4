package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/teal-fm/beacon/db"
	"github.com/teal-fm/beacon/db/apikey"
)

type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type SessionManager struct {
	db        *db.DB
	sessions  map[string]*Session // in memory cache over the sessions table
	apiKeyMgr *apikey.Manager
	mu        sync.RWMutex
}

func NewSessionManager(database *db.DB) *SessionManager {
	_, err := database.Exec(`
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		created_at TIMESTAMP,
		expires_at TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`)

	if err != nil {
		log.Printf("Error creating sessions table: %v", err)
	}

	apiKeyMgr := apikey.NewApiKeyManager(database)

	return &SessionManager{
		db:        database,
		sessions:  make(map[string]*Session),
		apiKeyMgr: apiKeyMgr,
	}
}

// create a new session for a user
func (sm *SessionManager) CreateSession(userID string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// random session id
	b := make([]byte, 32)
	rand.Read(b)
	sessionID := base64.URLEncoding.EncodeToString(b)

	now := time.Now().UTC()
	expiresAt := now.Add(24 * time.Hour) // 24-hour session

	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}

	sm.sessions[sessionID] = session

	if sm.db != nil {
		_, err := sm.db.Exec(`
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)`,
			sessionID, userID, now, expiresAt)

		if err != nil {
			log.Printf("Error storing session in database: %v", err)
		}
	}

	return session
}

// retrieve a session by ID
func (sm *SessionManager) GetSession(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	session, exists := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if exists {
		if time.Now().UTC().After(session.ExpiresAt) {
			sm.DeleteSession(sessionID)
			return nil, false
		}
		return session, true
	}

	// if not in memory and we have a database, check there
	if sm.db != nil {
		session = &Session{ID: sessionID}

		err := sm.db.QueryRow(`
		SELECT user_id, created_at, expires_at
		FROM sessions WHERE id = ?`, sessionID).Scan(
			&session.UserID, &session.CreatedAt, &session.ExpiresAt)

		if err != nil {
			return nil, false
		}

		if time.Now().UTC().After(session.ExpiresAt) {
			sm.DeleteSession(sessionID)
			return nil, false
		}

		sm.mu.Lock()
		sm.sessions[sessionID] = session
		sm.mu.Unlock()

		return session, true
	}

	return nil, false
}

// remove a session
func (sm *SessionManager) DeleteSession(sessionID string) {
	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if sm.db != nil {
		_, err := sm.db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
		if err != nil {
			log.Printf("Error deleting session from database: %v", err)
		}
	}
}

// set a session cookie for the user
func (sm *SessionManager) SetSessionCookie(w http.ResponseWriter, session *Session) {
	cookie := &http.Cookie{
		Name:     "session",
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		Expires:  session.ExpiresAt,
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie clears the session cookie
func (sm *SessionManager) ClearSessionCookie(w http.ResponseWriter) {
	cookie := &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   false,
		MaxAge:   -1,
	}
	http.SetCookie(w, cookie)
}

func (sm *SessionManager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("session")
	if err == nil {
		sm.DeleteSession(cookie.Value)
	}

	sm.ClearSessionCookie(w)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (sm *SessionManager) GetAPIKeyManager() *apikey.Manager {
	return sm.apiKeyMgr
}

func (sm *SessionManager) CreateAPIKey(userID string, name string, validityDays int) (*apikey.ApiKey, error) {
	return sm.apiKeyMgr.CreateApiKey(userID, name, validityDays)
}

// middleware that checks if a user is authenticated via cookies or API key
func WithAuth(handler http.HandlerFunc, sm *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// first: check API keys
		apiKeyStr, apiKeyErr := apikey.ExtractApiKey(r)
		if apiKeyErr == nil && apiKeyStr != "" {
			key, valid := sm.apiKeyMgr.GetApiKey(apiKeyStr)
			if valid {
				ctx := WithUserID(r.Context(), key.UserID)
				ctx = WithAPIRequest(ctx, true)
				handler(w, r.WithContext(ctx))
				return
			}
		}

		// if not found, check cookies for session value
		cookie, err := r.Cookie("session")
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		session, exists := sm.GetSession(cookie.Value)
		if !exists {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := WithUserID(r.Context(), session.UserID)
		handler(w, r.WithContext(ctx))
	}
}

// middleware that only accepts API keys
func WithAPIAuth(handler http.HandlerFunc, sm *SessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKeyStr, apiKeyErr := apikey.ExtractApiKey(r)
		if apiKeyErr != nil || apiKeyStr == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "API key is required"}`))
			return
		}

		key, valid := sm.apiKeyMgr.GetApiKey(apiKeyStr)
		if !valid {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error": "Invalid or expired API key"}`))
			return
		}

		ctx := WithUserID(r.Context(), key.UserID)
		ctx = WithAPIRequest(ctx, true)
		handler(w, r.WithContext(ctx))
	}
}

type contextKey int

const (
	userIDKey contextKey = iota
	apiRequestKey
)

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

func WithAPIRequest(ctx context.Context, isAPI bool) context.Context {
	return context.WithValue(ctx, apiRequestKey, isAPI)
}

func IsAPIRequest(ctx context.Context) bool {
	isAPI, ok := ctx.Value(apiRequestKey).(bool)
	return ok && isAPI
}
