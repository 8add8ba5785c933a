// Package state remembers what the user typed last time: the save directory
// and recent queries. The file lives in the XDG state dir and is managed by
// lazyjson, so it is read on first use and written back only when changed.
//
// Search results are never stored here.
package state

import (
	"path/filepath"
	"pix/pkg/lazyjson"
	"slices"
	"strings"
)

// FileName is the state file inside the state directory.
const FileName = "state.json"

// MaxRecent bounds Prefs.Recent.
const MaxRecent = 10

// Prefs is the persisted form state.
type Prefs struct {
	LastDir string `json:"last_dir,omitempty"`
	// Recent queries, most recent first, without duplicates.
	Recent []string `json:"recent,omitempty"`
}

// Open returns the manager for dir/state.json. Nothing is read until first
// use; a missing file yields zero Prefs.
func Open(dir string) lazyjson.Manager[Prefs] {
	return lazyjson.New[Prefs](filepath.Join(dir, FileName))
}

// Remember records a finished search and the directory images went to.
// Blank values are ignored.
func (p *Prefs) Remember(query, dir string) {
	if dir = strings.TrimSpace(dir); dir != "" {
		p.LastDir = dir
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return
	}
	p.Recent = slices.DeleteFunc(p.Recent, func(q string) bool { return q == query })
	p.Recent = slices.Insert(p.Recent, 0, query)
	if len(p.Recent) > MaxRecent {
		p.Recent = p.Recent[:MaxRecent]
	}
}

// Record applies Remember through m.
func Record(m lazyjson.Manager[Prefs], query, dir string) error {
	return m.Modify(func(p *Prefs) error {
		p.Remember(query, dir)
		return nil
	})
}
