package catalog

import (
	"errors"
	"sync/atomic"
)

// ErrNotLoaded is returned when no catalog snapshot has been published yet.
var ErrNotLoaded = errors.New("catalog not loaded")

// Store publishes the active catalog snapshot to concurrent readers.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore returns a store holding c, which may be nil.
func NewStore(c *Catalog) *Store {
	s := &Store{}
	if c != nil {
		s.current.Store(c)
	}
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() (*Catalog, error) {
	if s == nil {
		return nil, ErrNotLoaded
	}
	c := s.current.Load()
	if c == nil {
		return nil, ErrNotLoaded
	}
	return c, nil
}

// Swap publishes c and returns the previous snapshot.
func (s *Store) Swap(c *Catalog) *Catalog {
	if c == nil {
		return s.current.Load()
	}
	return s.current.Swap(c)
}

// Loaded reports whether a snapshot is available.
func (s *Store) Loaded() bool {
	return s != nil && s.current.Load() != nil
}
