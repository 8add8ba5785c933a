// Package links holds the set of discovered image links.
package links

import (
	"sort"
	"sync"
)

// Set is a goroutine-safe set of unique URLs.
//
// Every Clear starts a new epoch. AddAt only inserts while its epoch is
// current, so a writer that captured the epoch before a reset cannot bring
// old links back.
// Mutable
type Set struct {
	mu    sync.Mutex
	urls  map[string]struct{}
	epoch uint64
}

func NewSet() *Set {
	return &Set{urls: make(map[string]struct{})}
}

// Add inserts url and reports whether it was new.
func (s *Set) Add(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(url)
}

// AddAt inserts url if epoch is still current. It reports whether the set
// changed.
func (s *Set) AddAt(epoch uint64, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return false
	}
	return s.add(url)
}

func (s *Set) add(url string) bool {
	if _, ok := s.urls[url]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	return true
}

// Epoch returns the current epoch.
func (s *Set) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.urls)
}

func (s *Set) Contains(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.urls[url]
	return ok
}

// Snapshot returns a sorted copy of the links.
func (s *Set) Snapshot() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.urls))
	for u := range s.urls {
		out = append(out, u)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Clear removes every link and starts a new epoch.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls = make(map[string]struct{})
	s.epoch++
}
