// Package prefs is the typed view over the per-user key/value preference
// store: display name, preferred player, sharing and launch bookkeeping.
package prefs

import (
	"strconv"

	"github.com/teal-fm/beacon/db"
)

const (
	keyDisplayName     = "display_name"
	keyPreferredPkg    = "preferred_pkg"
	keyShareEnabled    = "share_enabled"
	keyAutoOpenOnStart = "auto_open_on_start"
	keyLastMusicLaunch = "last_music_launch"
)

type Prefs struct {
	db *db.DB
}

func New(database *db.DB) *Prefs {
	return &Prefs{db: database}
}

// DisplayName returns the user's chosen display name, "" when unset.
func (p *Prefs) DisplayName(uid string) (string, error) {
	v, _, err := p.db.GetPref(uid, keyDisplayName)
	return v, err
}

func (p *Prefs) SetDisplayName(uid, name string) error {
	return p.db.SetPref(uid, keyDisplayName, name)
}

func (p *Prefs) PreferredPkg(uid string) (string, error) {
	v, _, err := p.db.GetPref(uid, keyPreferredPkg)
	return v, err
}

func (p *Prefs) SetPreferredPkg(uid, pkg string) error {
	return p.db.SetPref(uid, keyPreferredPkg, pkg)
}

// ShareEnabled defaults to true when never set, like the original app.
func (p *Prefs) ShareEnabled(uid string) (bool, error) {
	v, ok, err := p.db.GetPref(uid, keyShareEnabled)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	return v == "true", nil
}

func (p *Prefs) SetShareEnabled(uid string, enabled bool) error {
	return p.db.SetPref(uid, keyShareEnabled, strconv.FormatBool(enabled))
}

func (p *Prefs) AutoOpenOnStart(uid string) (bool, error) {
	v, _, err := p.db.GetPref(uid, keyAutoOpenOnStart)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

func (p *Prefs) SetAutoOpenOnStart(uid string, enabled bool) error {
	return p.db.SetPref(uid, keyAutoOpenOnStart, strconv.FormatBool(enabled))
}

func (p *Prefs) LastMusicLaunch(uid string) (int64, error) {
	v, ok, err := p.db.GetPref(uid, keyLastMusicLaunch)
	if err != nil || !ok {
		return 0, err
	}
	ts, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, nil
	}
	return ts, nil
}

func (p *Prefs) SetLastMusicLaunch(uid string, ts int64) error {
	return p.db.SetPref(uid, keyLastMusicLaunch, strconv.FormatInt(ts, 10))
}
