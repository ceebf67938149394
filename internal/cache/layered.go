package cache

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Layered combines the memory cache with the optional persistent store.
// Lookups try memory first, then the database; database hits are copied back
// into memory. Records are written through to both layers.
type Layered struct {
	memory *Memory
	store  *Store // nil when persistence is disabled
}

// NewLayered assembles the layered cache. store may be nil.
func NewLayered(memory *Memory, store *Store) *Layered {
	return &Layered{memory: memory, store: store}
}

// Warm loads up to limit recent exchanges from the store into memory.
// A nil store makes this a no-op.
func (l *Layered) Warm(ctx context.Context, limit int) error {
	if l.store == nil {
		return nil
	}

	exchanges, err := l.store.LoadRecent(ctx, limit)
	if err != nil {
		return err
	}

	// Newest first from the store; insert oldest first so newer rows for a
	// repeated transcript overwrite older ones.
	for i := len(exchanges) - 1; i >= 0; i-- {
		if err := l.memory.Set(exchanges[i].Messages, exchanges[i].Response); err != nil {
			return err
		}
	}
	l.memory.Wait()

	log.Info().
		Int("exchanges", len(exchanges)).
		Msg("cache warmed from database")
	return nil
}

// Lookup returns the cached response and which layer served it.
func (l *Layered) Lookup(ctx context.Context, messages string) (response, source string, err error) {
	response, err = l.memory.Get(messages)
	if err == nil {
		return response, SourceMemory, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return "", "", err
	}

	if l.store == nil {
		return "", "", ErrNotFound
	}

	response, err = l.store.Lookup(ctx, messages)
	if err != nil {
		return "", "", err
	}

	// Backfill so the next hit is served from memory.
	_ = l.memory.Set(messages, response)

	return response, SourceDB, nil
}

// Record stores a completed exchange in both layers. A database failure is
// logged but does not fail the record; the memory layer already holds it.
func (l *Layered) Record(ctx context.Context, messages, response string) {
	if err := l.memory.Set(messages, response); err != nil {
		log.Error().Err(err).Msg("memory cache write failed")
	}

	if l.store == nil {
		return
	}
	if err := l.store.Insert(ctx, messages, response); err != nil {
		log.Error().Err(err).Msg("database cache write failed")
	}
}

// Close closes both layers.
func (l *Layered) Close() error {
	err := l.memory.Close()
	if l.store != nil {
		if serr := l.store.Close(); err == nil {
			err = serr
		}
	}
	return err
}
