// Package bus carries now-playing updates from the ingest path to the UI
// surfaces. Each user id has a single replay slot holding their latest
// event, so a late-joining consumer immediately knows what is playing.
package bus

import (
	"sync"

	"github.com/teal-fm/beacon/models"
)

const subscriberBuffer = 16

// Bus is a per-user broadcast channel with a replay depth of one. The zero
// value is not usable; construct with New and inject it where needed.
type Bus struct {
	mu     sync.Mutex
	subs   map[string]map[int]chan models.NowPlayingEvent
	nextID int
	latest map[string]models.NowPlayingEvent
}

func New() *Bus {
	return &Bus{
		subs:   make(map[string]map[int]chan models.NowPlayingEvent),
		latest: make(map[string]models.NowPlayingEvent),
	}
}

// Post publishes an event for a user to all of that user's subscribers and
// records it as the user's latest value. A subscriber that has fallen
// behind loses older updates rather than blocking the producer.
func (b *Bus) Post(uid string, ev models.NowPlayingEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.latest[uid] = ev

	for _, ch := range b.subs[uid] {
		select {
		case ch <- ev:
		default:
			// drop the oldest buffered value to make room for the newest
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

// Subscribe registers a consumer for one user's updates. If a latest value
// exists it is delivered first. The returned cancel func must be called to
// release the subscription; the channel is closed on cancel.
func (b *Bus) Subscribe(uid string) (<-chan models.NowPlayingEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan models.NowPlayingEvent, subscriberBuffer)
	if ev, ok := b.latest[uid]; ok {
		ch <- ev
	}
	if b.subs[uid] == nil {
		b.subs[uid] = make(map[int]chan models.NowPlayingEvent)
	}
	b.subs[uid][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[uid][id]; ok {
			delete(b.subs[uid], id)
			if len(b.subs[uid]) == 0 {
				delete(b.subs, uid)
			}
			close(sub)
		}
	}
	return ch, cancel
}

// Latest returns the most recently posted event for a user, if any.
func (b *Bus) Latest(uid string) (models.NowPlayingEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ev, ok := b.latest[uid]
	return ev, ok
}
