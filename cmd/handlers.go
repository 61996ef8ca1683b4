package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teal-fm/beacon/models"
	"github.com/teal-fm/beacon/service/history"
	"github.com/teal-fm/beacon/service/normalizer"
	"github.com/teal-fm/beacon/session"
)

func (app *application) home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte("beacon is running. POST events to /api/v1/now-playing with an API key."))
}

// --- account ---

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

func (app *application) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	user := &models.User{Username: req.Username}
	if req.Email != "" {
		user.Email = &req.Email
	}

	uid, err := app.database.CreateUser(user)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := app.prefs.SetDisplayName(uid, req.Username); err != nil {
		log.Printf("display name init failed for %s: %v", uid, err)
	}

	key, err := app.sessionManager.CreateAPIKey(uid, "default", 365)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	sess := app.sessionManager.CreateSession(uid)
	app.sessionManager.SetSessionCookie(w, sess)

	jsonResponse(w, http.StatusCreated, map[string]string{
		"uid":    uid,
		"apiKey": key.ID,
	})
}

// --- ingest ---

func (app *application) handleIngest(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	if !app.limiterFor(uid).Allow() {
		jsonResponse(w, http.StatusTooManyRequests, map[string]string{"error": "Too many events"})
		return
	}

	var ev models.NowPlayingEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid event body"})
		return
	}

	ev, err := app.normalizer.Normalize(ev)
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// presence on every event, history only via the segmenter's threshold
	app.bus.Post(uid, ev)
	app.committer.PublishPresence(uid, ev)
	app.segmenter.Emit(uid, ev)

	jsonResponse(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// handleFlush evaluates the caller's in-flight segment as if the song had
// changed. Devices call it right before they stop sending.
func (app *application) handleFlush(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	app.segmenter.Flush(uid)
	jsonResponse(w, http.StatusOK, map[string]string{"status": "flushed"})
}

// --- own surfaces ---

func (app *application) handleNowPlaying(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	if ev, ok := app.bus.Latest(uid); ok {
		jsonResponse(w, http.StatusOK, ev)
		return
	}

	// nothing in memory, fall back to the published presence document
	rec, err := app.database.GetPresence(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rec == nil {
		jsonResponse(w, http.StatusNotFound, map[string]string{"error": "Nothing playing"})
		return
	}

	jsonResponse(w, http.StatusOK, models.NowPlayingEvent{
		Track:     rec.Track,
		Artist:    rec.Artist,
		Service:   rec.Service,
		Timestamp: rec.Timestamp,
		ArtB64:    rec.ArtB64,
		ArtURL:    rec.ArtURL,
	})
}

func (app *application) handleHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	limit := app.pageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}

	rows, err := app.database.GetHistoryPage(uid, limit)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	visible := rows[:0]
	for _, row := range rows {
		if !app.deleter.Hidden(uid, row.ID) {
			visible = append(visible, row)
		}
	}

	var current *models.NowPlayingEvent
	if ev, ok := app.bus.Latest(uid); ok {
		current = &ev
	}

	entries := history.Reconcile(visible, current, app.coalesceWindowMs)
	if entries == nil {
		entries = []models.HistoryEntry{}
	}

	jsonResponse(w, http.StatusOK, entries)
}

func (app *application) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	id := r.PathValue("id")
	entry, err := app.database.GetHistoryEntry(uid, id)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entry == nil {
		jsonResponse(w, http.StatusNotFound, map[string]string{"error": "History entry not found"})
		return
	}

	// hidden immediately, committed to the store after the undo window
	app.deleter.Delete(uid, id)
	jsonResponse(w, http.StatusAccepted, map[string]string{"status": "deleted", "id": id})
}

func (app *application) handleHistoryUndo(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	id := r.PathValue("id")
	if !app.deleter.Cancel(uid, id) {
		jsonResponse(w, http.StatusGone, map[string]string{"error": "Undo window has passed"})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"status": "restored", "id": id})
}

// --- friends ---

func (app *application) handleFriendsList(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	friends, err := app.database.GetFriends(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if friends == nil {
		friends = []models.FriendRef{}
	}

	jsonResponse(w, http.StatusOK, friends)
}

type friendPutRequest struct {
	Nickname string `json:"nickname"`
}

func (app *application) handleFriendPut(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	friendUID := r.PathValue("uid")
	if friendUID == uid {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Cannot befriend yourself"})
		return
	}

	var req friendPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid body"})
		return
	}

	nickname := req.Nickname
	if nickname == "" {
		nickname = friendUID
	}

	if err := app.database.PutFriend(uid, models.FriendRef{UID: friendUID, Nickname: nickname}); err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, models.FriendRef{UID: friendUID, Nickname: nickname})
}

func (app *application) handleFriendDelete(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	if err := app.database.DeleteFriend(uid, r.PathValue("uid")); err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]string{"status": "removed"})
}

// handleFriendHistory serves a friend's recent plays, coalesced the same
// way as the owner's page and with their currently-playing song dropped
// from the top.
func (app *application) handleFriendHistory(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	friendUID := r.PathValue("uid")

	friends, err := app.database.GetFriends(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	isFriend := false
	for _, f := range friends {
		if f.UID == friendUID {
			isFriend = true
			break
		}
	}
	if !isFriend {
		jsonResponse(w, http.StatusForbidden, map[string]string{"error": "Not in your friend list"})
		return
	}

	rows, err := app.database.GetHistoryPage(friendUID, app.friendLimit)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	var current *models.NowPlayingEvent
	if rec, err := app.database.GetPresence(friendUID); err == nil && rec != nil {
		current = &models.NowPlayingEvent{
			Track:     rec.Track,
			Artist:    rec.Artist,
			Service:   rec.Service,
			Timestamp: rec.Timestamp,
		}
	}

	entries := history.Reconcile(rows, current, app.coalesceWindowMs)
	if entries == nil {
		entries = []models.HistoryEntry{}
	}

	jsonResponse(w, http.StatusOK, entries)
}

// --- feed ---

func (app *application) handleFeed(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	f, err := app.feedFor(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, f.Snapshot())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	socketWriteWait = 10 * time.Second
	socketPingEvery = 30 * time.Second
)

// handleFeedSocket streams the merged feed view over a websocket: the
// current view on connect, then a fresh copy after every change.
func (app *application) handleFeedSocket(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	f, err := app.feedFor(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed for %s: %v", uid, err)
		return
	}

	updates, cancel := f.Subscribe()
	defer cancel()
	defer conn.Close()

	// reads only serve to notice the peer going away
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	if err := conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err == nil {
		conn.WriteJSON(f.Snapshot())
	}

	ping := time.NewTicker(socketPingEvery)
	defer ping.Stop()

	for {
		select {
		case view, open := <-updates:
			if !open {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteJSON(view); err != nil {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(socketWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleNotices returns and drains the caller's queued notices.
func (app *application) handleNotices(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	app.noticeMu.Lock()
	msgs := app.notices[uid]
	delete(app.notices, uid)
	app.noticeMu.Unlock()

	if msgs == nil {
		msgs = []string{}
	}
	jsonResponse(w, http.StatusOK, msgs)
}

// --- settings ---

type settingsResponse struct {
	DisplayName     string `json:"displayName"`
	ShareEnabled    bool   `json:"shareEnabled"`
	PreferredPkg    string `json:"preferredPkg,omitempty"`
	AutoOpenOnStart bool   `json:"autoOpenOnStart"`
}

func (app *application) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	name, err := app.prefs.DisplayName(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	share, err := app.prefs.ShareEnabled(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	pkg, err := app.prefs.PreferredPkg(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	autoOpen, err := app.prefs.AutoOpenOnStart(uid)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, settingsResponse{
		DisplayName:     name,
		ShareEnabled:    share,
		PreferredPkg:    normalizer.ServiceLabel(pkg),
		AutoOpenOnStart: autoOpen,
	})
}

type settingsUpdate struct {
	DisplayName     *string `json:"displayName"`
	ShareEnabled    *bool   `json:"shareEnabled"`
	PreferredPkg    *string `json:"preferredPkg"`
	AutoOpenOnStart *bool   `json:"autoOpenOnStart"`
}

// handleSettingsPut applies a partial update: only the fields present in
// the body change.
func (app *application) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	uid, ok := session.GetUserID(r.Context())
	if !ok {
		jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req settingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "Invalid body"})
		return
	}

	if req.DisplayName != nil {
		if err := app.prefs.SetDisplayName(uid, *req.DisplayName); err != nil {
			jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	if req.ShareEnabled != nil {
		if err := app.prefs.SetShareEnabled(uid, *req.ShareEnabled); err != nil {
			jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	if req.PreferredPkg != nil {
		if err := app.prefs.SetPreferredPkg(uid, *req.PreferredPkg); err != nil {
			jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}
	if req.AutoOpenOnStart != nil {
		if err := app.prefs.SetAutoOpenOnStart(uid, *req.AutoOpenOnStart); err != nil {
			jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
	}

	app.handleSettingsGet(w, r)
}
