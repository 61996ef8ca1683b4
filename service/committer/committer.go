// Package committer owns the write path to the store: live presence on
// every event, a history entry for every qualified segment.
package committer

import (
	"log"
	"os"
	"sync"

	"github.com/teal-fm/beacon/models"
)

// Store is the slice of the document store the committer writes to.
type Store interface {
	UpsertPresence(rec models.PresenceRecord) error
	AddHistory(ownerUID string, entry models.HistoryEntry) (string, error)
}

// Settings supplies the per-user bits the committer reads before writing.
type Settings interface {
	DisplayName(uid string) (string, error)
	ShareEnabled(uid string) (bool, error)
}

// Service publishes presence and history. All writes are fire-and-forget:
// failures are logged, never retried, and never block the event path.
type Service struct {
	store    Store
	settings Settings
	logger   *log.Logger
	wg       sync.WaitGroup
}

func New(store Store, settings Settings) *Service {
	return &Service{
		store:    store,
		settings: settings,
		logger:   log.New(os.Stdout, "committer: ", log.LstdFlags|log.Lmsgprefix),
	}
}

// PublishPresence overwrites the user's presence document with the event.
// Called on every event, unbuffered and unthresholded. A user with sharing
// disabled, or no identity, publishes nothing.
func (c *Service) PublishPresence(uid string, ev models.NowPlayingEvent) {
	if uid == "" {
		return
	}

	share, err := c.settings.ShareEnabled(uid)
	if err != nil {
		c.logger.Printf("share flag read failed for %s: %v", uid, err)
		return
	}
	if !share {
		return
	}

	name, err := c.settings.DisplayName(uid)
	if err != nil {
		c.logger.Printf("display name read failed for %s: %v", uid, err)
	}
	if name == "" {
		name = shortUID(uid)
	}

	rec := models.PresenceRecord{
		UID:         uid,
		DisplayName: name,
		Track:       ev.Track,
		Artist:      ev.Artist,
		Service:     ev.Service,
		Timestamp:   ev.Timestamp,
		ArtB64:      ev.ArtB64,
		ArtURL:      ev.ArtURL,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.store.UpsertPresence(rec); err != nil {
			c.logger.Printf("presence set failed for %s: %v", uid, err)
		}
	}()
}

// CommitSegment records a finished segment as a history entry with
// ts = the last time the song was seen playing. Implements segmenter.Sink.
func (c *Service) CommitSegment(uid string, seg models.Segment) {
	if uid == "" {
		return
	}

	share, err := c.settings.ShareEnabled(uid)
	if err != nil {
		c.logger.Printf("share flag read failed for %s: %v", uid, err)
		return
	}
	if !share {
		return
	}

	entry := models.HistoryEntry{
		Track:   seg.Snapshot.Track,
		Artist:  seg.Snapshot.Artist,
		Service: seg.Snapshot.Service,
		Ts:      seg.LastSeenTs,
		ArtB64:  seg.Snapshot.ArtB64,
		ArtURL:  seg.Snapshot.ArtURL,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if _, err := c.store.AddHistory(uid, entry); err != nil {
			c.logger.Printf("history add failed for %s: %v", uid, err)
		}
	}()
}

// Wait blocks until in-flight writes have drained. Used in shutdown and
// tests; the event path never calls it.
func (c *Service) Wait() {
	c.wg.Wait()
}

func shortUID(uid string) string {
	if len(uid) > 6 {
		return uid[:6]
	}
	return uid
}
