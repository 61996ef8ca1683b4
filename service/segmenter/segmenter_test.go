package segmenter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/teal-fm/beacon/models"
)

type recordingSink struct {
	mu       sync.Mutex
	segments []models.Segment
	owners   []string
}

func (s *recordingSink) CommitSegment(uid string, seg models.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owners = append(s.owners, uid)
	s.segments = append(s.segments, seg)
}

func (s *recordingSink) all() []models.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Segment, len(s.segments))
	copy(out, s.segments)
	return out
}

func event(track, artist string, ts int64) models.NowPlayingEvent {
	return models.NowPlayingEvent{Track: track, Artist: artist, Service: "Spotify", Timestamp: ts}
}

func TestShortPlayNeverCommits(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	svc.Emit("u1", event("Song A", "Artist", 0))
	svc.Emit("u1", event("Song A", "Artist", 14999))
	svc.Emit("u1", event("Song B", "Artist", 15500))
	svc.Flush("u1")

	got := sink.all()
	for _, seg := range got {
		if seg.Key.Track == "Song A" {
			t.Errorf("Song A played 14999ms and must not commit, got %+v", seg)
		}
	}
}

func TestQualifiedPlayCommitsOnKeyChange(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	svc.Emit("u1", event("Song A", "Artist", 0))
	svc.Emit("u1", event("Song A", "Artist", 20000))
	svc.Emit("u1", event("Song B", "Artist", 20500))
	svc.Flush("u1")

	got := sink.all()

	var a []models.Segment
	for _, seg := range got {
		if seg.Key.Track == "Song A" {
			a = append(a, seg)
		}
	}

	if len(a) != 1 {
		t.Fatalf("expected exactly one Song A segment, got %d", len(a))
	}
	if a[0].LastSeenTs != 20000 {
		t.Errorf("segment must end at the last seen timestamp 20000, got %d", a[0].LastSeenTs)
	}
	if a[0].FirstSeenTs != 0 {
		t.Errorf("segment must start at the first seen timestamp 0, got %d", a[0].FirstSeenTs)
	}
}

func TestReappearanceStartsFresh(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	// A plays long enough, B is skipped through, A comes back briefly
	svc.Emit("u1", event("Song A", "Artist", 0))
	svc.Emit("u1", event("Song A", "Artist", 16000))
	svc.Emit("u1", event("Song B", "Artist", 17000))
	svc.Emit("u1", event("Song A", "Artist", 18000))
	svc.Emit("u1", event("Song A", "Artist", 19000))
	svc.Flush("u1")

	var aCount int
	for _, seg := range sink.all() {
		if seg.Key.Track == "Song A" {
			aCount++
		}
	}

	// the second run of A lasted only 1000ms
	if aCount != 1 {
		t.Errorf("expected one committed Song A segment, got %d", aCount)
	}
}

func TestFlushEvaluatesWithoutNewSegment(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	svc.Emit("u1", event("Song A", "Artist", 0))
	svc.Emit("u1", event("Song A", "Artist", 30000))
	svc.Flush("u1")

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("expected one segment after flush, got %d", len(got))
	}

	// a second flush has nothing pending
	svc.Flush("u1")
	if len(sink.all()) != 1 {
		t.Errorf("second flush must not commit again")
	}
}

func TestTimestampRegressionNeverShrinksSegment(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	svc.Emit("u1", event("Song A", "Artist", 0))
	svc.Emit("u1", event("Song A", "Artist", 20000))
	svc.Emit("u1", event("Song A", "Artist", 5000))
	svc.Flush("u1")

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("expected one segment, got %d", len(got))
	}
	if got[0].LastSeenTs != 20000 {
		t.Errorf("regressing timestamp must not move lastSeenTs back, got %d", got[0].LastSeenTs)
	}
}

func TestSnapshotRefreshesOnExtend(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	first := event("Song A", "Artist", 0)
	second := event("Song A", "Artist", 20000)
	second.ArtURL = "https://example.com/art.jpg"

	svc.Emit("u1", first)
	svc.Emit("u1", second)
	svc.Flush("u1")

	got := sink.all()
	if len(got) != 1 {
		t.Fatalf("expected one segment, got %d", len(got))
	}
	if got[0].Snapshot.ArtURL != second.ArtURL {
		t.Errorf("snapshot must come from the latest event, got %q", got[0].Snapshot.ArtURL)
	}
}

func TestUsersAreIndependent(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	svc.Emit("u1", event("Song A", "Artist", 0))
	svc.Emit("u2", event("Song B", "Artist", 0))
	svc.Emit("u1", event("Song A", "Artist", 20000))
	svc.Emit("u2", event("Song B", "Artist", 1000))
	svc.Flush("u1")
	svc.Flush("u2")

	for _, seg := range sink.all() {
		if seg.Key.Track == "Song B" {
			t.Errorf("u2's 1000ms play must not commit, got %+v", seg)
		}
	}

	var found bool
	for _, seg := range sink.all() {
		if seg.Key.Track == "Song A" {
			found = true
		}
	}
	if !found {
		t.Errorf("u1's 20000ms play must commit")
	}
}

func TestEmitAfterShutdownIsDropped(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	svc.Emit("u1", event("Song A", "Artist", 0))
	svc.Emit("u1", event("Song A", "Artist", 16000))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	before := len(sink.all())

	// no new worker may be spawned, no panic, nothing committed
	svc.Emit("u1", event("Song B", "Artist", 0))
	svc.Emit("u1", event("Song B", "Artist", 20000))
	svc.Flush("u1")

	if len(sink.all()) != before {
		t.Errorf("events after shutdown must be dropped, got %d new segments", len(sink.all())-before)
	}
}

func TestShutdownFlushesEveryUser(t *testing.T) {
	sink := &recordingSink{}
	svc := New(15000, sink)

	svc.Emit("u1", event("Song A", "Artist", 0))
	svc.Emit("u1", event("Song A", "Artist", 16000))
	svc.Emit("u2", event("Song B", "Artist", 0))
	svc.Emit("u2", event("Song B", "Artist", 17000))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	if len(sink.all()) != 2 {
		t.Errorf("expected both users flushed on shutdown, got %d segments", len(sink.all()))
	}
}
