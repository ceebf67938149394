package usage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounters_PickProvider_LeastUsage(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	candidates := []string{"A", "B"}

	// Alternates because each pick increments the winner.
	assert.Equal(t, "A", c.PickProvider(candidates))
	assert.Equal(t, "B", c.PickProvider(candidates))
	assert.Equal(t, "A", c.PickProvider(candidates))
	assert.Equal(t, "B", c.PickProvider(candidates))

	assert.Equal(t, uint64(2), c.Provider("A"))
	assert.Equal(t, uint64(2), c.Provider("B"))
}

func TestCounters_PickProvider_TieBreaksFirst(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	assert.Equal(t, "A", c.PickProvider([]string{"A", "B", "C"}))
}

func TestCounters_PickKey(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	keys := []string{"k1", "k2", "k3"}

	for i := 0; i < 6; i++ {
		c.PickKey(keys)
	}

	assert.Equal(t, uint64(2), c.Key("k1"))
	assert.Equal(t, uint64(2), c.Key("k2"))
	assert.Equal(t, uint64(2), c.Key("k3"))
}

func TestCounters_PickEmpty(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	assert.Equal(t, "", c.PickProvider(nil))
	assert.Equal(t, "", c.PickKey(nil))
}

func TestCounters_Reset(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	c.PickProvider([]string{"A"})
	c.PickKey([]string{"k"})

	c.Reset()

	assert.Equal(t, uint64(0), c.Provider("A"))
	assert.Equal(t, uint64(0), c.Key("k"))
	assert.Empty(t, c.ProviderSnapshot())
}

func TestCounters_ConcurrentPicks(t *testing.T) {
	t.Parallel()

	c := NewCounters()
	candidates := []string{"A", "B"}

	var wg sync.WaitGroup
	const goroutines = 8
	const picksEach = 250
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < picksEach; j++ {
				c.PickProvider(candidates)
			}
		}()
	}
	wg.Wait()

	// Every pick increments exactly one counter, and least-usage keeps the
	// two within one of each other.
	total := c.Provider("A") + c.Provider("B")
	assert.Equal(t, uint64(goroutines*picksEach), total)
	diff := int64(c.Provider("A")) - int64(c.Provider("B"))
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, int64(1))
}
