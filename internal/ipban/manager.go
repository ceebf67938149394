// Package ipban tracks authentication failures per client and permanently
// bans clients that fail too often within a sliding window.
//
// Clients are identified by a derived key: IPv4 addresses are keyed by their
// literal, IPv6 addresses by their /48 network (a single customer allocation),
// and unparseable identifiers verbatim. Banning a /48 means every address
// inside it is banned.
package ipban

import (
	"net/netip"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Defaults matching the production deployment: five failures within one hour.
const (
	DefaultMaxFailures   = 5
	DefaultFailureWindow = time.Hour
)

// record tracks failures for one key inside the current window.
type record struct {
	failures     uint32
	firstFailure time.Time
}

// Manager counts authentication failures and maintains the permanent ban set.
// All methods are safe for concurrent use; the increment, window check, and
// ban insertion for a key are atomic with respect to other calls.
type Manager struct {
	mu          sync.Mutex
	records     map[string]*record
	banned      map[string]struct{}
	maxFailures uint32
	window      time.Duration
	now         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithMaxFailures overrides the failure threshold.
func WithMaxFailures(n uint32) Option {
	return func(m *Manager) { m.maxFailures = n }
}

// WithFailureWindow overrides the sliding window duration.
func WithFailureWindow(d time.Duration) Option {
	return func(m *Manager) { m.window = d }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager with the default thresholds.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		records:     make(map[string]*record),
		banned:      make(map[string]struct{}),
		maxFailures: DefaultMaxFailures,
		window:      DefaultFailureWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Key derives the ban key for a client identifier.
// IPv4 is keyed directly, IPv6 by its /48 network string, and strings that
// do not parse as an IP are keyed verbatim.
func Key(id string) string {
	addr, err := netip.ParseAddr(id)
	if err != nil {
		return id
	}
	if addr.Is4() || addr.Is4In6() {
		return id
	}
	prefix, err := addr.Prefix(48)
	if err != nil {
		return id
	}
	return prefix.String()
}

// IsBanned reports whether the client identifier is permanently banned.
func (m *Manager) IsBanned(id string) bool {
	key := Key(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	_, banned := m.banned[key]
	return banned
}

// RecordFailure registers an authentication failure for the client.
// If the key already has failures inside the window the count increments,
// otherwise the window restarts at one. Reaching the threshold inserts the
// key into the permanent ban set. Returns the current failure count.
func (m *Manager) RecordFailure(id string) uint32 {
	key := Key(id)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok || now.Sub(rec.firstFailure) > m.window {
		rec = &record{failures: 1, firstFailure: now}
		m.records[key] = rec
	} else {
		rec.failures++
	}

	log.Warn().
		Str("ip", id).
		Str("key", key).
		Uint32("failures", rec.failures).
		Uint32("max_failures", m.maxFailures).
		Msg("authentication failure recorded")

	if rec.failures >= m.maxFailures {
		m.banned[key] = struct{}{}
		log.Warn().
			Str("ip", id).
			Str("key", key).
			Uint32("failures", rec.failures).
			Msg("client permanently banned")
	}

	return rec.failures
}

// ResetFailures removes the failure record for the client.
// Called on successful authentication. Bans are never removed.
func (m *Manager) ResetFailures(id string) {
	key := Key(id)

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, key)
}

// FailureCount returns the failure count inside the current window,
// or zero when there is no record or the window has expired.
func (m *Manager) FailureCount(id string) uint32 {
	key := Key(id)
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok || now.Sub(rec.firstFailure) > m.window {
		return 0
	}
	return rec.failures
}
