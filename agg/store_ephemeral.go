package agg

import (
	"sync"

	"github.com/victhorio/arkchat/agg/core"
)

type EphemeralStore struct {
	mu sync.Mutex
	u  map[string]core.Usage
}

func NewEphemeralStore() *EphemeralStore {
	return &EphemeralStore{
		u: make(map[string]core.Usage),
	}
}

func (s *EphemeralStore) Usage(key string) core.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.u[key]
}

func (s *EphemeralStore) Record(key string, usage core.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.u[key]
	u.Inc(usage)
	s.u[key] = u

	return nil
}

// Totals sums every session.
func (s *EphemeralStore) Totals() (core.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total core.Usage
	for _, u := range s.u {
		total.Inc(u)
	}
	return total, nil
}

func (s *EphemeralStore) loaded(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.u[key]
	return ok
}

func (s *EphemeralStore) set(key string, usage core.Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.u[key] = usage
}
