package feed

import (
	"fmt"
	"testing"
	"time"

	"github.com/teal-fm/beacon/db"
	"github.com/teal-fm/beacon/models"
)

func setupTestDB(t *testing.T) *db.DB {
	database, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	if err := database.Initialize(); err != nil {
		t.Fatalf("Failed to initialize test database: %v", err)
	}
	return database
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestPartitionRespectsChunkSize(t *testing.T) {
	tests := []struct {
		count int
		size  int
		want  []int
	}{
		{count: 23, size: 10, want: []int{10, 10, 3}},
		{count: 10, size: 10, want: []int{10}},
		{count: 3, size: 10, want: []int{3}},
		{count: 0, size: 10, want: nil},
		{count: 22, size: 10, want: []int{10, 10, 2}},
	}

	for _, tc := range tests {
		ids := make([]string, tc.count)
		for i := range ids {
			ids[i] = fmt.Sprintf("u%d", i)
		}

		chunks := Partition(ids, tc.size)
		if len(chunks) != len(tc.want) {
			t.Errorf("%d ids: expected %d chunks, got %d", tc.count, len(tc.want), len(chunks))
			continue
		}
		for i, chunk := range chunks {
			if len(chunk) != tc.want[i] {
				t.Errorf("%d ids: chunk %d has %d entries, want %d", tc.count, i, len(chunk), tc.want[i])
			}
		}
	}
}

func TestFeedMergesAcrossChunks(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	// 12 friends forces two presence subscriptions with chunk size 10
	for i := 0; i < 12; i++ {
		uid := fmt.Sprintf("f%02d", i)
		if err := database.PutFriend("viewer", models.FriendRef{UID: uid, Nickname: uid}); err != nil {
			t.Fatalf("put friend: %v", err)
		}
		err := database.UpsertPresence(models.PresenceRecord{
			UID: uid, DisplayName: uid, Track: "Song " + uid, Artist: "Artist", Service: "Spotify", Timestamp: int64(i),
		})
		if err != nil {
			t.Fatalf("upsert presence: %v", err)
		}
	}

	f := New(database, "viewer", 10)
	if err := f.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.Stop()

	waitFor(t, func() bool { return len(f.Snapshot()) == 12 }, "all 12 friends visible in the merged view")

	seen := make(map[string]bool)
	for _, row := range f.Snapshot() {
		seen[row.UID] = true
	}
	for i := 0; i < 12; i++ {
		uid := fmt.Sprintf("f%02d", i)
		if !seen[uid] {
			t.Errorf("friend %s missing from merged view", uid)
		}
	}
}

func TestFeedTracksLivePresenceUpdates(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	if err := database.PutFriend("viewer", models.FriendRef{UID: "f1", Nickname: "pal"}); err != nil {
		t.Fatalf("put friend: %v", err)
	}

	f := New(database, "viewer", 10)
	if err := f.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.Stop()

	err := database.UpsertPresence(models.PresenceRecord{
		UID: "f1", DisplayName: "Pal", Track: "First Song", Artist: "Artist", Service: "Spotify", Timestamp: 1,
	})
	if err != nil {
		t.Fatalf("upsert presence: %v", err)
	}

	waitFor(t, func() bool {
		snap := f.Snapshot()
		return len(snap) == 1 && snap[0].Track == "First Song"
	}, "initial presence reaches the view")

	err = database.UpsertPresence(models.PresenceRecord{
		UID: "f1", DisplayName: "Pal", Track: "Second Song", Artist: "Artist", Service: "Spotify", Timestamp: 2,
	})
	if err != nil {
		t.Fatalf("upsert presence: %v", err)
	}

	waitFor(t, func() bool {
		snap := f.Snapshot()
		return len(snap) == 1 && snap[0].Track == "Second Song"
	}, "live update replaces the old presence")
}

func TestFeedRebuildDropsRemovedFriend(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	for _, uid := range []string{"f1", "f2"} {
		if err := database.PutFriend("viewer", models.FriendRef{UID: uid, Nickname: uid}); err != nil {
			t.Fatalf("put friend: %v", err)
		}
		err := database.UpsertPresence(models.PresenceRecord{
			UID: uid, DisplayName: uid, Track: "Song", Artist: "Artist", Service: "Spotify", Timestamp: 1,
		})
		if err != nil {
			t.Fatalf("upsert presence: %v", err)
		}
	}

	f := New(database, "viewer", 10)
	if err := f.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.Stop()

	waitFor(t, func() bool { return len(f.Snapshot()) == 2 }, "both friends visible")

	if err := database.DeleteFriend("viewer", "f2"); err != nil {
		t.Fatalf("delete friend: %v", err)
	}

	waitFor(t, func() bool {
		snap := f.Snapshot()
		return len(snap) == 1 && snap[0].UID == "f1"
	}, "removed friend dropped at rebuild")
}

func TestFeedIgnoresNonFriendPresence(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	if err := database.PutFriend("viewer", models.FriendRef{UID: "f1", Nickname: "pal"}); err != nil {
		t.Fatalf("put friend: %v", err)
	}
	err := database.UpsertPresence(models.PresenceRecord{
		UID: "f1", DisplayName: "Pal", Track: "Song", Artist: "Artist", Service: "Spotify", Timestamp: 1,
	})
	if err != nil {
		t.Fatalf("upsert presence: %v", err)
	}

	f := New(database, "viewer", 10)
	if err := f.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.Stop()

	waitFor(t, func() bool { return len(f.Snapshot()) == 1 }, "friend visible")

	// a stranger's presence must never leak into the view
	err = database.UpsertPresence(models.PresenceRecord{
		UID: "stranger", DisplayName: "X", Track: "Other", Artist: "Artist", Service: "Spotify", Timestamp: 2,
	})
	if err != nil {
		t.Fatalf("upsert presence: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	snap := f.Snapshot()
	if len(snap) != 1 || snap[0].UID != "f1" {
		t.Errorf("unexpected view after stranger update: %+v", snap)
	}
}

func TestFeedCarriesAvatars(t *testing.T) {
	database := setupTestDB(t)
	defer database.Close()

	if err := database.PutFriend("viewer", models.FriendRef{UID: "f1", Nickname: "pal"}); err != nil {
		t.Fatalf("put friend: %v", err)
	}
	err := database.UpsertPresence(models.PresenceRecord{
		UID: "f1", DisplayName: "Pal", Track: "Song", Artist: "Artist", Service: "Spotify", Timestamp: 1,
	})
	if err != nil {
		t.Fatalf("upsert presence: %v", err)
	}

	f := New(database, "viewer", 10)
	if err := f.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer f.Stop()

	waitFor(t, func() bool { return len(f.Snapshot()) == 1 }, "friend visible")

	err = database.SetProfileMeta("f1", models.ProfileMeta{PhotoURL: "https://example.com/p.jpg"})
	if err != nil {
		t.Fatalf("set profile meta: %v", err)
	}

	waitFor(t, func() bool {
		snap := f.Snapshot()
		return len(snap) == 1 && snap[0].Avatar == "https://example.com/p.jpg"
	}, "avatar update reaches the view")
}
