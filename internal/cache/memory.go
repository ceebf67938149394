package cache

import (
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog/log"
)

// Memory is the bounded in-memory exchange cache. Entries cost one unit each,
// so MaxCost bounds the entry count; ristretto's admission policy decides
// which entries survive under pressure.
type Memory struct {
	cache  *ristretto.Cache[string, string]
	closed atomic.Bool
}

// NewMemory creates an in-memory cache bounded to maxEntries exchanges.
func NewMemory(maxEntries int) (*Memory, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, string]{
		NumCounters: int64(maxEntries) * 10,
		MaxCost:     int64(maxEntries),
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Int("max_entries", maxEntries).
		Msg("memory cache created")

	return &Memory{cache: cache}, nil
}

// Get returns the cached response for a transcript.
func (m *Memory) Get(messages string) (string, error) {
	if m.closed.Load() {
		return "", ErrClosed
	}

	response, found := m.cache.Get(messages)
	if !found {
		return "", ErrNotFound
	}
	return response, nil
}

// Set stores a response for a transcript, evicting under the entry bound.
func (m *Memory) Set(messages, response string) error {
	if m.closed.Load() {
		return ErrClosed
	}

	m.cache.Set(messages, response, 1)
	return nil
}

// Wait blocks until buffered writes are applied. Used by tests and warm-up.
func (m *Memory) Wait() {
	m.cache.Wait()
}

// Close releases the cache. Idempotent.
func (m *Memory) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.cache.Close()
	return nil
}
