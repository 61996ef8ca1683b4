package db

import (
	"fmt"
	"sync"

	"github.com/teal-fm/beacon/models"
)

const watchBuffer = 32

// A watch is a long-lived push subscription: a snapshot is delivered on
// subscribe and a fresh value on every matching write, until Close. Close
// is synchronous; after it returns no further deliveries happen, so a
// superseding rebuild never races stale updates from a torn-down set.

// PresenceWatch streams presence documents for a bounded id set.
type PresenceWatch struct {
	C chan models.PresenceRecord

	mu     sync.Mutex
	closed bool
	ids    map[string]bool
	hub    *watchHub
	id     int
}

// HistoryWatch streams the most-recent page of an owner's history on every
// change to it.
type HistoryWatch struct {
	C chan []models.HistoryEntry

	mu     sync.Mutex
	closed bool
	owner  string
	limit  int
	hub    *watchHub
	id     int
}

// FriendsWatch streams the owner's full friend list on every change.
type FriendsWatch struct {
	C chan []models.FriendRef

	mu     sync.Mutex
	closed bool
	owner  string
	hub    *watchHub
	id     int
}

// ProfileWatch streams one user's profile meta on every change.
type ProfileWatch struct {
	C chan models.ProfileMeta

	mu     sync.Mutex
	closed bool
	uid    string
	hub    *watchHub
	id     int
}

type watchHub struct {
	mu       sync.Mutex
	nextID   int
	presence map[int]*PresenceWatch
	history  map[int]*HistoryWatch
	friends  map[int]*FriendsWatch
	profile  map[int]*ProfileWatch
}

func newWatchHub() *watchHub {
	return &watchHub{
		presence: make(map[int]*PresenceWatch),
		history:  make(map[int]*HistoryWatch),
		friends:  make(map[int]*FriendsWatch),
		profile:  make(map[int]*ProfileWatch),
	}
}

// send pushes v onto ch without ever blocking a writer; when the consumer
// has fallen behind the oldest buffered value is dropped. Last write wins.
func send[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// WatchPresence opens a live subscription for up to MaxInFilter user ids.
// Current presence rows for the ids are delivered first.
func (db *DB) WatchPresence(ids []string) (*PresenceWatch, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("watch presence: empty id set")
	}
	if len(ids) > MaxInFilter {
		return nil, fmt.Errorf("watch presence: membership filter supports at most %d ids, got %d", MaxInFilter, len(ids))
	}

	idSet := make(map[string]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	w := &PresenceWatch{
		C:   make(chan models.PresenceRecord, watchBuffer),
		ids: idSet,
		hub: db.hub,
	}

	db.hub.mu.Lock()
	w.id = db.hub.nextID
	db.hub.nextID++
	db.hub.presence[w.id] = w
	db.hub.mu.Unlock()

	// snapshot after registration so no write between query and register
	// is lost; a duplicate delivery is harmless (last write wins per uid)
	for _, id := range ids {
		rec, err := db.GetPresence(id)
		if err != nil {
			w.Close()
			return nil, err
		}
		if rec != nil {
			w.deliver(*rec)
		}
	}

	return w, nil
}

func (w *PresenceWatch) deliver(rec models.PresenceRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed || !w.ids[rec.UID] {
		return
	}
	send(w.C, rec)
}

// Close tears the subscription down. Safe to call more than once.
func (w *PresenceWatch) Close() {
	w.hub.mu.Lock()
	delete(w.hub.presence, w.id)
	w.hub.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.C)
	}
}

// WatchHistory opens a live subscription on an owner's recent history page.
func (db *DB) WatchHistory(ownerUID string, limit int) (*HistoryWatch, error) {
	w := &HistoryWatch{
		C:     make(chan []models.HistoryEntry, watchBuffer),
		owner: ownerUID,
		limit: limit,
		hub:   db.hub,
	}

	db.hub.mu.Lock()
	w.id = db.hub.nextID
	db.hub.nextID++
	db.hub.history[w.id] = w
	db.hub.mu.Unlock()

	page, err := db.GetHistoryPage(ownerUID, limit)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.deliver(page)

	return w, nil
}

func (w *HistoryWatch) deliver(page []models.HistoryEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	send(w.C, page)
}

func (w *HistoryWatch) Close() {
	w.hub.mu.Lock()
	delete(w.hub.history, w.id)
	w.hub.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.C)
	}
}

// WatchFriends opens a live subscription on the owner's friend list.
func (db *DB) WatchFriends(ownerUID string) (*FriendsWatch, error) {
	w := &FriendsWatch{
		C:     make(chan []models.FriendRef, watchBuffer),
		owner: ownerUID,
		hub:   db.hub,
	}

	db.hub.mu.Lock()
	w.id = db.hub.nextID
	db.hub.nextID++
	db.hub.friends[w.id] = w
	db.hub.mu.Unlock()

	list, err := db.GetFriends(ownerUID)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.deliver(list)

	return w, nil
}

func (w *FriendsWatch) deliver(list []models.FriendRef) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	send(w.C, list)
}

func (w *FriendsWatch) Close() {
	w.hub.mu.Lock()
	delete(w.hub.friends, w.id)
	w.hub.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.C)
	}
}

// WatchProfile opens a live subscription on one user's profile meta.
func (db *DB) WatchProfile(uid string) (*ProfileWatch, error) {
	w := &ProfileWatch{
		C:   make(chan models.ProfileMeta, watchBuffer),
		uid: uid,
		hub: db.hub,
	}

	db.hub.mu.Lock()
	w.id = db.hub.nextID
	db.hub.nextID++
	db.hub.profile[w.id] = w
	db.hub.mu.Unlock()

	meta, err := db.GetProfileMeta(uid)
	if err != nil {
		w.Close()
		return nil, err
	}
	if meta != nil {
		w.deliver(*meta)
	}

	return w, nil
}

func (w *ProfileWatch) deliver(meta models.ProfileMeta) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	send(w.C, meta)
}

func (w *ProfileWatch) Close() {
	w.hub.mu.Lock()
	delete(w.hub.profile, w.id)
	w.hub.mu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.C)
	}
}

// notify fan-out, called by the write paths after a successful commit.

func (db *DB) notifyPresence(rec models.PresenceRecord) {
	db.hub.mu.Lock()
	watches := make([]*PresenceWatch, 0, len(db.hub.presence))
	for _, w := range db.hub.presence {
		watches = append(watches, w)
	}
	db.hub.mu.Unlock()

	for _, w := range watches {
		w.deliver(rec)
	}
}

func (db *DB) notifyHistory(ownerUID string) {
	db.hub.mu.Lock()
	watches := make([]*HistoryWatch, 0, len(db.hub.history))
	for _, w := range db.hub.history {
		if w.owner == ownerUID {
			watches = append(watches, w)
		}
	}
	db.hub.mu.Unlock()

	for _, w := range watches {
		page, err := db.GetHistoryPage(ownerUID, w.limit)
		if err != nil {
			continue
		}
		w.deliver(page)
	}
}

func (db *DB) notifyFriends(ownerUID string) {
	db.hub.mu.Lock()
	watches := make([]*FriendsWatch, 0, len(db.hub.friends))
	for _, w := range db.hub.friends {
		if w.owner == ownerUID {
			watches = append(watches, w)
		}
	}
	db.hub.mu.Unlock()

	for _, w := range watches {
		list, err := db.GetFriends(ownerUID)
		if err != nil {
			continue
		}
		w.deliver(list)
	}
}

func (db *DB) notifyProfile(uid string, meta models.ProfileMeta) {
	db.hub.mu.Lock()
	watches := make([]*ProfileWatch, 0, len(db.hub.profile))
	for _, w := range db.hub.profile {
		if w.uid == uid {
			watches = append(watches, w)
		}
	}
	db.hub.mu.Unlock()

	for _, w := range watches {
		w.deliver(meta)
	}
}
