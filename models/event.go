package models

// NowPlayingEvent is one canonical "now playing" observation for a user,
// produced by the device-side normalizer. Timestamps are unix millis and
// are usually, but not provably, non-decreasing per user.
type NowPlayingEvent struct {
	Track     string `json:"track"`
	Artist    string `json:"artist"`
	Service   string `json:"service"`
	Timestamp int64  `json:"timestamp"`
	ArtB64    string `json:"art,omitempty"`
	ArtURL    string `json:"artUrl,omitempty"`
}

// SegmentKey identifies "the same song". Exact, case-sensitive match.
type SegmentKey struct {
	Track   string `json:"track"`
	Artist  string `json:"artist"`
	Service string `json:"service"`
}

// Key returns the event's segment key.
func (e NowPlayingEvent) Key() SegmentKey {
	return SegmentKey{Track: e.Track, Artist: e.Artist, Service: e.Service}
}

// Segment is a finished, threshold-qualified run of events sharing one key.
type Segment struct {
	Key         SegmentKey      `json:"key"`
	FirstSeenTs int64           `json:"firstSeenTs"`
	LastSeenTs  int64           `json:"lastSeenTs"`
	Snapshot    NowPlayingEvent `json:"snapshot"`
}

// DwellMs is the elapsed time between the first and last observed event.
func (s Segment) DwellMs() int64 {
	return s.LastSeenTs - s.FirstSeenTs
}
