// Package segmenter turns each user's raw stream of now-playing events
// into discrete play segments. A segment only graduates to history when
// the song was seen long enough before the key changed.
package segmenter

import (
	"context"
	"log"
	"os"
	"sync"

	"github.com/teal-fm/beacon/models"
)

const mailboxSize = 64

// Sink receives segments that met the dwell threshold.
type Sink interface {
	CommitSegment(uid string, seg models.Segment)
}

// pending is the in-flight play for one user. Owned exclusively by that
// user's worker goroutine.
type pending struct {
	key      models.SegmentKey
	firstTs  int64
	lastTs   int64
	snapshot models.NowPlayingEvent
}

type message struct {
	ev    models.NowPlayingEvent
	flush bool
	stop  bool
	done  chan struct{}
}

type worker struct {
	mailbox chan message
}

// Service maintains at most one pending segment per user id. Events for
// one user are processed in arrival order by a single worker goroutine;
// different users run fully in parallel.
type Service struct {
	minPlayMs int64
	sink      Sink
	logger    *log.Logger

	mu      sync.Mutex
	closed  bool
	workers map[string]*worker
	wg      sync.WaitGroup
}

func New(minPlayMs int64, sink Sink) *Service {
	return &Service{
		minPlayMs: minPlayMs,
		sink:      sink,
		logger:    log.New(os.Stdout, "segmenter: ", log.LstdFlags|log.Lmsgprefix),
		workers:   make(map[string]*worker),
	}
}

// Emit feeds one event into the user's stream. Blocks only if the user's
// mailbox is full, which preserves per-user arrival order. Events after
// Shutdown are dropped.
func (s *Service) Emit(uid string, ev models.NowPlayingEvent) {
	w := s.workerFor(uid)
	if w == nil {
		return
	}
	w.mailbox <- message{ev: ev}
}

// Flush evaluates the user's current segment exactly like a key change,
// without starting a new one, and returns once the evaluation has run.
// Called when the producing device is about to stop.
func (s *Service) Flush(uid string) {
	s.mu.Lock()
	w, ok := s.workers[uid]
	s.mu.Unlock()
	if !ok {
		return
	}

	done := make(chan struct{})
	w.mailbox <- message{flush: true, done: done}
	<-done
}

// Shutdown flushes every active user and stops all workers. Later Emits
// are dropped rather than respawning workers nobody will stop.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	workers := s.workers
	s.workers = make(map[string]*worker)
	s.mu.Unlock()

	for _, w := range workers {
		w.mailbox <- message{stop: true}
	}

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) workerFor(uid string) *worker {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if w, ok := s.workers[uid]; ok {
		return w
	}

	w := &worker{mailbox: make(chan message, mailboxSize)}
	s.workers[uid] = w

	s.wg.Add(1)
	go s.run(uid, w)

	return w
}

// run is the single writer for one user's pending segment.
func (s *Service) run(uid string, w *worker) {
	defer s.wg.Done()

	var p *pending

	for msg := range w.mailbox {
		if msg.flush || msg.stop {
			if p != nil {
				s.finalize(uid, p)
				p = nil
			}
			if msg.done != nil {
				close(msg.done)
			}
			if msg.stop {
				return
			}
			continue
		}

		ev := msg.ev

		if p == nil {
			p = &pending{
				key:      ev.Key(),
				firstTs:  ev.Timestamp,
				lastTs:   ev.Timestamp,
				snapshot: ev,
			}
			continue
		}

		if p.key == ev.Key() {
			// same song continuing: extend the window, refresh the
			// snapshot. A timestamp regression never moves lastTs back.
			if ev.Timestamp > p.lastTs {
				p.lastTs = ev.Timestamp
			}
			p.snapshot = ev
			continue
		}

		// song changed: evaluate the outgoing segment, then start fresh
		s.finalize(uid, p)
		p = &pending{
			key:      ev.Key(),
			firstTs:  ev.Timestamp,
			lastTs:   ev.Timestamp,
			snapshot: ev,
		}
	}
}

// finalize commits the segment when it met the dwell threshold, otherwise
// drops it silently.
func (s *Service) finalize(uid string, p *pending) {
	dwell := p.lastTs - p.firstTs
	if dwell < s.minPlayMs {
		s.logger.Printf("skip history for %s (played %dms < %dms)", uid, dwell, s.minPlayMs)
		return
	}

	s.sink.CommitSegment(uid, models.Segment{
		Key:         p.key,
		FirstSeenTs: p.firstTs,
		LastSeenTs:  p.lastTs,
		Snapshot:    p.snapshot,
	})
}
