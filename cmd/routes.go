package main

import (
	"net/http"

	"github.com/justinas/alice"
	"github.com/teal-fm/beacon/session"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", app.home)
	mux.HandleFunc("POST /api/v1/register", app.handleRegister)
	mux.HandleFunc("/logout", app.sessionManager.HandleLogout)

	// ingest: devices push normalized events, flush when they stop
	mux.HandleFunc("POST /api/v1/now-playing", session.WithAPIAuth(app.handleIngest, app.sessionManager))
	mux.HandleFunc("POST /api/v1/flush", session.WithAPIAuth(app.handleFlush, app.sessionManager))

	// own surfaces
	mux.HandleFunc("GET /api/v1/now-playing", session.WithAuth(app.handleNowPlaying, app.sessionManager))
	mux.HandleFunc("GET /api/v1/history", session.WithAuth(app.handleHistory, app.sessionManager))
	mux.HandleFunc("DELETE /api/v1/history/{id}", session.WithAuth(app.handleHistoryDelete, app.sessionManager))
	mux.HandleFunc("POST /api/v1/history/{id}/undo", session.WithAuth(app.handleHistoryUndo, app.sessionManager))

	// friends and their surfaces
	mux.HandleFunc("GET /api/v1/friends", session.WithAuth(app.handleFriendsList, app.sessionManager))
	mux.HandleFunc("PUT /api/v1/friends/{uid}", session.WithAuth(app.handleFriendPut, app.sessionManager))
	mux.HandleFunc("DELETE /api/v1/friends/{uid}", session.WithAuth(app.handleFriendDelete, app.sessionManager))
	mux.HandleFunc("GET /api/v1/friends/{uid}/history", session.WithAuth(app.handleFriendHistory, app.sessionManager))

	mux.HandleFunc("GET /api/v1/feed", session.WithAuth(app.handleFeed, app.sessionManager))
	mux.HandleFunc("GET /ws/feed", session.WithAuth(app.handleFeedSocket, app.sessionManager))

	mux.HandleFunc("GET /api/v1/notices", session.WithAuth(app.handleNotices, app.sessionManager))

	mux.HandleFunc("GET /api/v1/settings", session.WithAuth(app.handleSettingsGet, app.sessionManager))
	mux.HandleFunc("PUT /api/v1/settings", session.WithAuth(app.handleSettingsPut, app.sessionManager))

	standard := alice.New()
	return standard.Then(mux)
}
