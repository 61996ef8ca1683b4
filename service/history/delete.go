package history

import (
	"log"
	"os"
	"sync"
	"time"
)

// Remover is the slice of the store the deleter needs.
type Remover interface {
	DeleteHistory(ownerUID, id string) error
}

// DefaultGrace is how long a deleted entry stays recoverable.
const DefaultGrace = 4 * time.Second

type pendingKey struct {
	uid string
	id  string
}

type pendingDelete struct {
	timer *time.Timer
}

// Deleter implements optimistic deletion: the entry disappears from view
// immediately, the store delete is issued only after the grace window, and
// an undo inside the window costs zero store calls. If the store delete
// fails the entry simply becomes visible again.
type Deleter struct {
	store  Remover
	grace  time.Duration
	logger *log.Logger

	// onFailure, when set, is told about commits the store rejected so the
	// owner can be notified. The entry is already un-hidden by then.
	onFailure func(uid, id string, err error)

	mu      sync.Mutex
	pending map[pendingKey]*pendingDelete
}

func NewDeleter(store Remover, grace time.Duration) *Deleter {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Deleter{
		store:   store,
		grace:   grace,
		logger:  log.New(os.Stdout, "history: ", log.LstdFlags|log.Lmsgprefix),
		pending: make(map[pendingKey]*pendingDelete),
	}
}

// OnFailure registers a callback for store deletes that failed after the
// grace window. Must be called before the first Delete.
func (d *Deleter) OnFailure(fn func(uid, id string, err error)) {
	d.onFailure = fn
}

// Delete hides the entry and schedules the store delete. Deleting an entry
// that is already pending is a no-op.
func (d *Deleter) Delete(uid, id string) {
	key := pendingKey{uid: uid, id: id}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.pending[key]; ok {
		return
	}

	p := &pendingDelete{}
	p.timer = time.AfterFunc(d.grace, func() { d.commit(key) })
	d.pending[key] = p
}

// Cancel restores a pending delete. Reports whether there was anything to
// restore; once the grace window has elapsed the delete is committed and
// Cancel returns false.
func (d *Deleter) Cancel(uid, id string) bool {
	key := pendingKey{uid: uid, id: id}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.pending[key]
	if !ok {
		return false
	}
	// Stop losing the race means commit already holds or held the lock
	// path for this key; treat it as expired.
	if !p.timer.Stop() {
		return false
	}
	delete(d.pending, key)
	return true
}

// Hidden reports whether the entry is currently pending deletion and
// should be filtered from any page served to the owner.
func (d *Deleter) Hidden(uid, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[pendingKey{uid: uid, id: id}]
	return ok
}

// commit issues exactly one store delete for an expired grace window.
func (d *Deleter) commit(key pendingKey) {
	d.mu.Lock()
	if _, ok := d.pending[key]; !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	if err := d.store.DeleteHistory(key.uid, key.id); err != nil {
		d.logger.Printf("history delete failed for %s/%s: %v", key.uid, key.id, err)
		if d.onFailure != nil {
			d.onFailure(key.uid, key.id, err)
		}
	}
}

// Shutdown commits every pending delete immediately so nothing is lost on
// process exit.
func (d *Deleter) Shutdown() {
	d.mu.Lock()
	keys := make([]pendingKey, 0, len(d.pending))
	for key, p := range d.pending {
		if p.timer.Stop() {
			keys = append(keys, key)
		}
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, key := range keys {
		if err := d.store.DeleteHistory(key.uid, key.id); err != nil {
			d.logger.Printf("history delete failed for %s/%s: %v", key.uid, key.id, err)
		}
	}
}
