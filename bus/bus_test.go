package bus

import (
	"testing"
	"time"

	"github.com/teal-fm/beacon/models"
)

func event(track string, ts int64) models.NowPlayingEvent {
	return models.NowPlayingEvent{Track: track, Artist: "Artist", Service: "Spotify", Timestamp: ts}
}

func recv(t *testing.T, ch <-chan models.NowPlayingEvent) models.NowPlayingEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return models.NowPlayingEvent{}
	}
}

func TestLateSubscriberGetsLatest(t *testing.T) {
	b := New()

	b.Post("u1", event("Song A", 1))
	b.Post("u1", event("Song B", 2))

	ch, cancel := b.Subscribe("u1")
	defer cancel()

	if ev := recv(t, ch); ev.Track != "Song B" {
		t.Errorf("late subscriber must replay the latest event, got %s", ev.Track)
	}
}

func TestSubscribersAreScopedToUser(t *testing.T) {
	b := New()

	ch, cancel := b.Subscribe("u1")
	defer cancel()

	b.Post("u2", event("Other Song", 1))

	select {
	case ev := <-ch:
		t.Errorf("u1 subscriber must not see u2's event %s", ev.Track)
	case <-time.After(50 * time.Millisecond):
	}

	b.Post("u1", event("My Song", 2))
	if ev := recv(t, ch); ev.Track != "My Song" {
		t.Errorf("expected My Song, got %s", ev.Track)
	}
}

func TestLatest(t *testing.T) {
	b := New()

	if _, ok := b.Latest("u1"); ok {
		t.Errorf("no event posted yet, latest must be absent")
	}

	b.Post("u1", event("Song A", 1))
	ev, ok := b.Latest("u1")
	if !ok || ev.Track != "Song A" {
		t.Errorf("unexpected latest: %+v ok=%v", ev, ok)
	}
}

func TestSlowSubscriberLosesOldestNotNewest(t *testing.T) {
	b := New()

	ch, cancel := b.Subscribe("u1")
	defer cancel()

	// overflow the subscriber buffer without draining
	for i := 0; i < subscriberBuffer+5; i++ {
		b.Post("u1", event("Song", int64(i)))
	}

	var last models.NowPlayingEvent
	drained := false
	for !drained {
		select {
		case ev := <-ch:
			last = ev
		default:
			drained = true
		}
	}

	if last.Timestamp != int64(subscriberBuffer+4) {
		t.Errorf("newest event must survive overflow, last seen ts=%d", last.Timestamp)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	b := New()

	ch, cancel := b.Subscribe("u1")
	cancel()

	if _, open := <-ch; open {
		t.Errorf("cancelled subscription channel must be closed")
	}

	// posting after cancel must not panic
	b.Post("u1", event("Song", 1))
}
