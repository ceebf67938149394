// Package usage tracks how many requests each provider and each API key has
// served, for least-usage load balancing and the /stats endpoint.
package usage

import "sync"

// ProviderUsage is one row of the stats report.
type ProviderUsage struct {
	Provider string `json:"provider"`
	Usage    uint64 `json:"usage"`
}

// Counters holds two monotonically increasing maps: provider name to request
// count and API key to request count. Counts reset only via Reset.
// All methods are safe for concurrent use.
type Counters struct {
	mu        sync.RWMutex
	providers map[string]uint64
	keys      map[string]uint64
}

// NewCounters creates empty usage counters.
func NewCounters() *Counters {
	return &Counters{
		providers: make(map[string]uint64),
		keys:      make(map[string]uint64),
	}
}

// Provider returns the current count for a provider name (zero if absent).
func (c *Counters) Provider(name string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.providers[name]
}

// Key returns the current count for an API key (zero if absent).
func (c *Counters) Key(key string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.keys[key]
}

// PickProvider selects the name with the lowest count among candidates and
// increments it, atomically with respect to concurrent selections. Ties are
// broken by candidate order. Returns "" when candidates is empty.
func (c *Counters) PickProvider(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	chosen := candidates[0]
	minUsage := c.providers[chosen]
	for _, name := range candidates[1:] {
		if u := c.providers[name]; u < minUsage {
			minUsage = u
			chosen = name
		}
	}

	c.providers[chosen]++
	return chosen
}

// PickKey selects the key with the lowest count among candidates and
// increments it, atomically with respect to concurrent selections. Ties are
// broken by candidate order. Returns "" when candidates is empty.
func (c *Counters) PickKey(candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	chosen := candidates[0]
	minUsage := c.keys[chosen]
	for _, key := range candidates[1:] {
		if u := c.keys[key]; u < minUsage {
			minUsage = u
			chosen = key
		}
	}

	c.keys[chosen]++
	return chosen
}

// ProviderSnapshot returns a copy of the provider counts for reporting.
// Order is unspecified; callers sort as needed.
func (c *Counters) ProviderSnapshot() []ProviderUsage {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rows := make([]ProviderUsage, 0, len(c.providers))
	for name, count := range c.providers {
		rows = append(rows, ProviderUsage{Provider: name, Usage: count})
	}
	return rows
}

// Reset clears both maps.
func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.providers = make(map[string]uint64)
	c.keys = make(map[string]uint64)
}
