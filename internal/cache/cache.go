// Package cache stores completed chat exchanges keyed by the request's
// messages transcript, with a bounded in-memory layer and an optional
// PostgreSQL write-through store.
package cache

import "errors"

// Cache errors.
var (
	// ErrNotFound indicates the transcript has no cached response.
	ErrNotFound = errors.New("cache: not found")

	// ErrClosed indicates the cache has been closed.
	ErrClosed = errors.New("cache: closed")
)

// Lookup source tags, surfaced in request logs.
const (
	SourceMemory = "memory"
	SourceDB     = "db"
)

// Exchange couples a request transcript with the response it produced.
// Messages is the raw JSON array taken verbatim from the request body; two
// requests hit the same entry only when their messages JSON is identical.
type Exchange struct {
	Messages string
	Response string
}
