// Package recent keeps the bounded, most-recent-first list of selected
// emotes and persists it after every change.
package recent

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/dshills/kemote/internal/diskstore"
	"github.com/dshills/kemote/internal/emote"
)

// DefaultCapacity is the number of emotes remembered.
const DefaultCapacity = 15

// Store is the recency list. Index 0 is the most recently accessed emote.
type Store struct {
	disk     *diskstore.Store
	capacity int

	mu    sync.Mutex
	items []emote.Emote
}

// Open loads the persisted list from disk. A missing document yields an
// empty list. Persisted lists longer than capacity are cut to capacity.
func Open(disk *diskstore.Store, capacity int) (*Store, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Store{disk: disk, capacity: capacity}

	var stored []emote.Emote
	if _, err := disk.ReadDocument(diskstore.RecentDocument, &stored); err != nil {
		return nil, fmt.Errorf("recent: loading: %w", err)
	}
	seen := make(map[string]bool, len(stored))
	for _, e := range stored {
		if seen[e.ID] || len(s.items) == capacity {
			continue
		}
		seen[e.ID] = true
		s.items = append(s.items, e)
	}
	return s, nil
}

// Access moves e to the front, evicting the least recent entry when full,
// and writes the whole list to disk. If the write fails the list is left
// unchanged, so memory and disk never disagree.
func (s *Store) Access(e emote.Emote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]emote.Emote, 0, s.capacity)
	next = append(next, e)
	for _, x := range s.items {
		if len(next) == s.capacity {
			break
		}
		if x.ID != e.ID {
			next = append(next, x)
		}
	}

	if err := s.disk.WriteDocument(diskstore.RecentDocument, next); err != nil {
		return fmt.Errorf("recent: saving: %w", err)
	}
	s.items = next
	return nil
}

// Snapshot returns the current list as a restartable sequence. Later calls
// to Access do not affect it.
func (s *Store) Snapshot() iter.Seq[emote.Emote] {
	s.mu.Lock()
	items := slices.Clone(s.items)
	s.mu.Unlock()

	return func(yield func(emote.Emote) bool) {
		for _, e := range items {
			if !yield(e) {
				return
			}
		}
	}
}

// Len returns the number of stored emotes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Capacity returns the maximum number of stored emotes.
func (s *Store) Capacity() int {
	return s.capacity
}
