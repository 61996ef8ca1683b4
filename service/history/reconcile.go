// Package history shapes the stored listening log for display: duplicate
// and near-duplicate collapsing, suppression of the entry still playing,
// and optimistic deletion with an undo window.
package history

import (
	"strings"

	"github.com/teal-fm/beacon/models"
)

// DefaultCoalesceWindowMs collapses repeats of the same song closer
// together than two minutes into their most recent occurrence.
const DefaultCoalesceWindowMs int64 = 2 * 60 * 1000

// Reconcile filters a history page, newest first, for display.
//
// Three passes in order: exact id dedup keeping the first occurrence,
// coalescing of same-song repeats inside the window keeping the most
// recent, and suppression of the newest entry when it matches what the
// user is playing right now. Older repeats of the current song survive
// suppression.
func Reconcile(rows []models.HistoryEntry, current *models.NowPlayingEvent, windowMs int64) []models.HistoryEntry {
	if windowMs <= 0 {
		windowMs = DefaultCoalesceWindowMs
	}

	seenIDs := make(map[string]bool, len(rows))
	keeperTs := make(map[models.SegmentKey]int64, len(rows))

	kept := make([]models.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		if row.ID != "" {
			if seenIDs[row.ID] {
				continue
			}
			seenIDs[row.ID] = true
		}

		key := row.Key()
		keeper, ok := keeperTs[key]
		if ok && keeper-row.Ts <= windowMs {
			continue
		}
		if !ok {
			// rows arrive newest first, so the first occurrence is the most
			// recent play of this song. Every later candidate compares
			// against it, never against an older kept repeat.
			keeperTs[key] = row.Ts
		}

		kept = append(kept, row)
	}

	if current != nil && len(kept) > 0 && matchesCurrent(kept[0], *current) {
		kept = kept[1:]
	}

	return kept
}

// matchesCurrent compares the newest entry against the live event:
// case-insensitive on track and artist, exact on service.
func matchesCurrent(entry models.HistoryEntry, ev models.NowPlayingEvent) bool {
	return strings.EqualFold(entry.Track, ev.Track) &&
		strings.EqualFold(entry.Artist, ev.Artist) &&
		entry.Service == ev.Service
}
