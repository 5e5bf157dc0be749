// Package progress converts noisy phase-local progress measurements into a
// single monotonic global value and delivers it to a progress sink.
package progress

import (
	"context"
	"sync"
)

// Sink receives live progress values for running jobs. Implementations are
// fire-and-forget: delivery failures are logged by callers, never fatal.
type Sink interface {
	// Set records the current progress (0-100) for a job key.
	Set(ctx context.Context, key string, percent int) error
	// Remove deletes the progress entry for a job key.
	Remove(ctx context.Context, key string) error
}

// Reader exposes live progress values to API consumers.
type Reader interface {
	// Fetch returns the current progress for a job key and whether the key
	// is present.
	Fetch(ctx context.Context, key string) (int, bool, error)
}

// MemorySink is an in-process Sink, used in tests and single-node deployments.
type MemorySink struct {
	mu      sync.Mutex
	values  map[string]int
	history map[string][]int
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		values:  make(map[string]int),
		history: make(map[string][]int),
	}
}

// Set records the current progress for a job key.
func (s *MemorySink) Set(_ context.Context, key string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = percent
	s.history[key] = append(s.history[key], percent)
	return nil
}

// Remove deletes the progress entry for a job key.
func (s *MemorySink) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Get returns the current value and whether the key is present.
func (s *MemorySink) Get(key string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	return v, ok
}

// Fetch returns the current value and whether the key is present.
func (s *MemorySink) Fetch(_ context.Context, key string) (int, bool, error) {
	v, ok := s.Get(key)
	return v, ok, nil
}

// History returns every value ever written for a key, in order.
// Survives Remove so tests can assert on the full sequence.
func (s *MemorySink) History(key string) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.history[key]))
	copy(out, s.history[key])
	return out
}
