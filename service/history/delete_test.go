package history

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type countingRemover struct {
	mu      sync.Mutex
	deletes []string
	err     error
}

func (r *countingRemover) DeleteHistory(ownerUID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, ownerUID+"/"+id)
	return r.err
}

func (r *countingRemover) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.deletes)
}

func TestUndoInsideGraceCostsNothing(t *testing.T) {
	store := &countingRemover{}
	d := NewDeleter(store, 50*time.Millisecond)

	d.Delete("u1", "e1")
	if !d.Hidden("u1", "e1") {
		t.Fatalf("entry must be hidden immediately after delete")
	}

	if !d.Cancel("u1", "e1") {
		t.Fatalf("cancel inside the grace window must succeed")
	}
	if d.Hidden("u1", "e1") {
		t.Errorf("cancelled entry must be visible again")
	}

	// let the window pass to prove no delayed commit fires
	time.Sleep(100 * time.Millisecond)
	if store.count() != 0 {
		t.Errorf("undo must issue zero store deletes, got %d", store.count())
	}
}

func TestExpiryCommitsExactlyOnce(t *testing.T) {
	store := &countingRemover{}
	d := NewDeleter(store, 20*time.Millisecond)

	d.Delete("u1", "e1")
	d.Delete("u1", "e1") // second call while pending is a no-op

	time.Sleep(100 * time.Millisecond)

	if store.count() != 1 {
		t.Fatalf("expected exactly one store delete, got %d", store.count())
	}
	if store.deletes[0] != "u1/e1" {
		t.Errorf("unexpected delete target %s", store.deletes[0])
	}
	if d.Hidden("u1", "e1") {
		t.Errorf("committed entry must no longer be tracked as pending")
	}
}

func TestCancelAfterExpiryFails(t *testing.T) {
	store := &countingRemover{}
	d := NewDeleter(store, 10*time.Millisecond)

	d.Delete("u1", "e1")
	time.Sleep(60 * time.Millisecond)

	if d.Cancel("u1", "e1") {
		t.Errorf("cancel after the grace window must report failure")
	}
	if store.count() != 1 {
		t.Errorf("expected the expired delete to have committed, got %d", store.count())
	}
}

func TestFailedCommitNotifiesAndUnhides(t *testing.T) {
	store := &countingRemover{err: errors.New("store down")}
	d := NewDeleter(store, 10*time.Millisecond)

	var mu sync.Mutex
	var failed []string
	d.OnFailure(func(uid, id string, err error) {
		mu.Lock()
		failed = append(failed, uid+"/"+id)
		mu.Unlock()
	})

	d.Delete("u1", "e1")
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(failed) != 1 || failed[0] != "u1/e1" {
		t.Errorf("expected one failure notification, got %v", failed)
	}
	if d.Hidden("u1", "e1") {
		t.Errorf("entry must reappear when the store delete fails")
	}
}

func TestIndependentEntries(t *testing.T) {
	store := &countingRemover{}
	d := NewDeleter(store, 20*time.Millisecond)

	d.Delete("u1", "e1")
	d.Delete("u1", "e2")
	d.Cancel("u1", "e1")

	time.Sleep(100 * time.Millisecond)

	if store.count() != 1 {
		t.Fatalf("expected only the uncancelled entry deleted, got %d", store.count())
	}
	if store.deletes[0] != "u1/e2" {
		t.Errorf("wrong entry deleted: %s", store.deletes[0])
	}
}

func TestShutdownCommitsPendingImmediately(t *testing.T) {
	store := &countingRemover{}
	d := NewDeleter(store, time.Hour)

	d.Delete("u1", "e1")
	d.Delete("u2", "e2")
	d.Shutdown()

	if store.count() != 2 {
		t.Errorf("expected both pending deletes committed on shutdown, got %d", store.count())
	}
}
