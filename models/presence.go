package models

// PresenceRecord is the single latest now-playing state published per user,
// fully overwritten on each upsert.
type PresenceRecord struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName"`
	Track       string `json:"track"`
	Artist      string `json:"artist"`
	Service     string `json:"service"`
	Timestamp   int64  `json:"timestamp"`
	ArtB64      string `json:"art,omitempty"`
	ArtURL      string `json:"artUrl,omitempty"`
}

// HistoryEntry is a permanently recorded finished segment. The id is
// assigned by the store; entries are immutable once written.
type HistoryEntry struct {
	ID      string `json:"id"`
	Track   string `json:"track"`
	Artist  string `json:"artist"`
	Service string `json:"service"`
	Ts      int64  `json:"ts"`
	ArtB64  string `json:"art,omitempty"`
	ArtURL  string `json:"artUrl,omitempty"`
}

// Key returns the entry's segment key.
func (h HistoryEntry) Key() SegmentKey {
	return SegmentKey{Track: h.Track, Artist: h.Artist, Service: h.Service}
}

// FriendRef is one edge of the owner's friend list.
type FriendRef struct {
	UID      string `json:"uid"`
	Nickname string `json:"nickname"`
}

// ProfileMeta holds the rarely-changing profile bits (avatar) for a user.
type ProfileMeta struct {
	PhotoURL string `json:"photoUrl,omitempty"`
	PhotoB64 string `json:"photoB64,omitempty"`
}
