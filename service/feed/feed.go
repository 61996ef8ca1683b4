// Package feed keeps one merged, live view of what a user's friends are
// playing. The remote store caps membership filters at 10 ids, so the
// friend list is partitioned into chunks with one presence subscription
// per chunk. Whenever the friend list itself changes every subscription is
// torn down and rebuilt from scratch; correctness over incremental
// diffing.
package feed

import (
	"log"
	"os"
	"sort"
	"sync"

	"github.com/teal-fm/beacon/db"
	"github.com/teal-fm/beacon/models"
)

const updateQueue = 128

// FriendPresence is one row of the merged view: the friend's latest
// presence joined with the viewer's nickname for them and their avatar.
type FriendPresence struct {
	models.PresenceRecord
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
}

// Partition splits ids into chunks of at most size, preserving order.
func Partition(ids []string, size int) [][]string {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

// update is one message on the reducer's inbox. gen guards against stale
// deliveries from a torn-down subscription set.
type update struct {
	gen      int
	friends  []models.FriendRef
	presence *models.PresenceRecord
	avatar   *avatarUpdate
}

type avatarUpdate struct {
	uid  string
	meta models.ProfileMeta
}

// Service aggregates live presence for one viewer's friend set. A single
// reducer goroutine owns all view state; subscription callbacks never
// touch it directly.
type Service struct {
	db        *db.DB
	ownerUID  string
	chunkSize int
	logger    *log.Logger

	updates chan update

	// reducer-owned state, no lock needed
	gen           int
	friends       []models.FriendRef
	presenceByUID map[string]models.PresenceRecord
	avatars       map[string]string
	chunkWatches  []*db.PresenceWatch
	avatarWatches []*db.ProfileWatch
	friendsWatch  *db.FriendsWatch

	mu      sync.Mutex
	view    []FriendPresence
	subs    map[int]chan []FriendPresence
	nextSub int

	stop    chan struct{}
	stopped chan struct{}
}

func New(database *db.DB, ownerUID string, chunkSize int) *Service {
	if chunkSize <= 0 || chunkSize > db.MaxInFilter {
		chunkSize = db.MaxInFilter
	}
	return &Service{
		db:            database,
		ownerUID:      ownerUID,
		chunkSize:     chunkSize,
		logger:        log.New(os.Stdout, "feed: ", log.LstdFlags|log.Lmsgprefix),
		updates:       make(chan update, updateQueue),
		presenceByUID: make(map[string]models.PresenceRecord),
		avatars:       make(map[string]string),
		subs:          make(map[int]chan []FriendPresence),
		stop:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}
}

// Start opens the friend-list subscription and runs the reducer until Stop.
func (s *Service) Start() error {
	fw, err := s.db.WatchFriends(s.ownerUID)
	if err != nil {
		return err
	}
	s.friendsWatch = fw

	go func() {
		for list := range fw.C {
			select {
			case s.updates <- update{friends: list}:
			case <-s.stop:
				return
			}
		}
	}()

	go s.reduce()
	return nil
}

// Stop tears down every subscription and stops the reducer.
func (s *Service) Stop() {
	close(s.stop)
	<-s.stopped
}

// Snapshot returns a copy of the current merged view, ordered by nickname.
func (s *Service) Snapshot() []FriendPresence {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FriendPresence, len(s.view))
	copy(out, s.view)
	return out
}

// Subscribe streams the merged view after every applied change. The
// returned cancel must be called; the channel closes on cancel or Stop.
func (s *Service) Subscribe() (<-chan []FriendPresence, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan []FriendPresence, 8)
	if s.view != nil {
		ch <- s.view
	}
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// reduce is the single owner of the merged view.
func (s *Service) reduce() {
	defer func() {
		s.teardown()
		if s.friendsWatch != nil {
			s.friendsWatch.Close()
		}
		s.mu.Lock()
		for id, ch := range s.subs {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
		close(s.stopped)
	}()

	for {
		select {
		case <-s.stop:
			return
		case u := <-s.updates:
			s.apply(u)
		}
	}
}

func (s *Service) apply(u update) {
	switch {
	case u.friends != nil:
		s.rebuild(u.friends)
	case u.presence != nil:
		if u.gen != s.gen {
			return
		}
		s.presenceByUID[u.presence.UID] = *u.presence
	case u.avatar != nil:
		if u.gen != s.gen {
			return
		}
		avatar := u.avatar.meta.PhotoURL
		if avatar == "" {
			avatar = u.avatar.meta.PhotoB64
		}
		s.avatars[u.avatar.uid] = avatar
	default:
		return
	}

	s.publish()
}

// rebuild tears down all chunk and avatar subscriptions and re-partitions
// from the new friend list. Presence for ids no longer in the list is
// dropped here, not incrementally.
func (s *Service) rebuild(friends []models.FriendRef) {
	s.teardown()
	s.gen++
	s.friends = friends

	keep := make(map[string]bool, len(friends))
	ids := make([]string, 0, len(friends))
	for _, f := range friends {
		if f.UID == "" {
			continue
		}
		keep[f.UID] = true
		ids = append(ids, f.UID)
	}

	for uid := range s.presenceByUID {
		if !keep[uid] {
			delete(s.presenceByUID, uid)
		}
	}
	for uid := range s.avatars {
		if !keep[uid] {
			delete(s.avatars, uid)
		}
	}

	gen := s.gen

	// one continuous subscription per chunk of at most chunkSize ids
	for _, chunk := range Partition(ids, s.chunkSize) {
		w, err := s.db.WatchPresence(chunk)
		if err != nil {
			s.logger.Printf("presence watch failed for %s: %v", s.ownerUID, err)
			continue
		}
		s.chunkWatches = append(s.chunkWatches, w)

		go func(w *db.PresenceWatch) {
			for rec := range w.C {
				r := rec
				select {
				case s.updates <- update{gen: gen, presence: &r}:
				case <-s.stop:
					return
				}
			}
		}(w)
	}

	// avatars change rarely, one subscription per friend keeps it simple
	for _, uid := range ids {
		w, err := s.db.WatchProfile(uid)
		if err != nil {
			s.logger.Printf("profile watch failed for %s: %v", uid, err)
			continue
		}
		s.avatarWatches = append(s.avatarWatches, w)

		go func(uid string, w *db.ProfileWatch) {
			for meta := range w.C {
				select {
				case s.updates <- update{gen: gen, avatar: &avatarUpdate{uid: uid, meta: meta}}:
				case <-s.stop:
					return
				}
			}
		}(uid, w)
	}
}

func (s *Service) teardown() {
	for _, w := range s.chunkWatches {
		w.Close()
	}
	s.chunkWatches = nil
	for _, w := range s.avatarWatches {
		w.Close()
	}
	s.avatarWatches = nil
}

// publish rebuilds the ordered view and fans it out to subscribers.
func (s *Service) publish() {
	view := make([]FriendPresence, 0, len(s.friends))
	for _, f := range s.friends {
		rec, ok := s.presenceByUID[f.UID]
		if !ok {
			continue
		}
		name := f.Nickname
		if rec.DisplayName != "" {
			name = rec.DisplayName
		}
		row := FriendPresence{
			PresenceRecord: rec,
			Nickname:       name,
			Avatar:         s.avatars[f.UID],
		}
		view = append(view, row)
	}
	sort.SliceStable(view, func(i, j int) bool { return view[i].Nickname < view[j].Nickname })

	s.mu.Lock()
	s.view = view
	for _, ch := range s.subs {
		select {
		case ch <- view:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- view:
			default:
			}
		}
	}
	s.mu.Unlock()
}
