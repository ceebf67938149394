package config

import "sync/atomic"

// RuntimeConfig is the read interface components use to observe the current
// configuration. Holding a *Config directly would go stale after hot-reload;
// calling Get per operation always observes the latest snapshot.
type RuntimeConfig interface {
	Get() *Config
}

// Runtime provides atomic access to the configuration for hot-reload support.
// Reads are lock-free; a reload swaps the whole snapshot, so in-flight
// requests see either the old or the new configuration, never a partial view.
type Runtime struct {
	ptr  atomic.Pointer[Config]
	path string
}

// NewRuntime creates a Runtime holding the given initial configuration.
// The path is remembered for Reload.
func NewRuntime(initial *Config, path string) *Runtime {
	r := &Runtime{path: path}
	r.ptr.Store(initial)
	return r
}

// Get returns the current configuration snapshot.
func (r *Runtime) Get() *Config {
	return r.ptr.Load()
}

// Store atomically replaces the configuration snapshot.
func (r *Runtime) Store(cfg *Config) {
	r.ptr.Store(cfg)
}

// Path returns the config file path the runtime was created from.
func (r *Runtime) Path() string {
	return r.path
}

// Reload re-reads the config file and swaps in the new snapshot.
// On any load or validation error the previous configuration is retained
// and the error is returned.
func (r *Runtime) Reload() error {
	cfg, err := Load(r.path)
	if err != nil {
		return err
	}
	r.ptr.Store(cfg)
	return nil
}

var _ RuntimeConfig = (*Runtime)(nil)
