// Package normalizer is the ingest boundary. Devices are expected to send
// canonical events, but the notification streams they scrape are noisy, so
// everything is trimmed, labeled and guff-stripped here before keying.
package normalizer

import (
	"errors"
	"strings"
	"time"

	"github.com/teal-fm/beacon/models"
)

// ErrMalformed marks events carrying neither a track nor an artist.
var ErrMalformed = errors.New("event has no track or artist")

var serviceLabels = map[string]string{
	"com.google.android.apps.youtube.music": "YouTube Music",
	"com.spotify.music":                     "Spotify",
	"com.apple.android.music":               "Apple Music",
}

type Normalizer struct {
	cleaner *MetadataCleaner
}

func New() *Normalizer {
	return &Normalizer{cleaner: NewMetadataCleaner()}
}

// Normalize validates and canonicalizes one incoming event. Cleaning runs
// before the event enters the pipeline so segment keys always see the
// normalized values.
func (n *Normalizer) Normalize(ev models.NowPlayingEvent) (models.NowPlayingEvent, error) {
	ev.Track = strings.TrimSpace(ev.Track)
	ev.Artist = strings.TrimSpace(ev.Artist)
	ev.Service = strings.TrimSpace(ev.Service)

	if ev.Track == "" && ev.Artist == "" {
		return ev, ErrMalformed
	}

	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	ev.Service = ServiceLabel(ev.Service)

	if cleaned, changed := n.cleaner.CleanTrack(ev.Track); changed {
		ev.Track = cleaned
	}

	return ev, nil
}

// ServiceLabel maps a player package id to its display label. Unknown
// services pass through untouched.
func ServiceLabel(service string) string {
	if label, ok := serviceLabels[service]; ok {
		return label
	}
	for pkg, label := range serviceLabels {
		if strings.EqualFold(service, label) || strings.EqualFold(service, pkg) {
			return label
		}
	}
	return service
}
