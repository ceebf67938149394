// Package config provides configuration loading, validation, and hot-reload
// for ai-forward.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/samber/mo"
)

// Configuration errors.
var (
	ErrAuthRequired = errors.New("config: auth token is required")
	ErrNoProviders  = errors.New("config: at least one provider is required")
)

// Log level constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// DefaultCacheSize is the number of cached exchanges loaded from the
// persistent store at startup when cache_size is not configured.
const DefaultCacheSize = 1000

// Config represents the complete ai-forward configuration.
// A Config value is an immutable snapshot; hot-reload replaces it wholesale
// through Runtime.
type Config struct {
	// Auth is the shared bearer token required on every protected request.
	Auth string `json:"auth"`

	// Port is the listening port.
	Port int `json:"port"`

	// Providers are the upstream LLM providers, in configuration order.
	Providers []Provider `json:"providers"`

	// Log holds optional logging options.
	Log LogConfig `json:"log"`

	// Database is an optional PostgreSQL DSN for the persistent exchange
	// store. Empty disables persistence.
	Database string `json:"database"`

	// CacheSize bounds how many exchanges are loaded into memory from the
	// persistent store at startup. Zero means DefaultCacheSize.
	CacheSize int `json:"cache_size"`

	// EnableHTTP2 enables HTTP/2 cleartext (h2c) serving.
	EnableHTTP2 bool `json:"enable_http2"`
}

// Provider describes a single upstream completion endpoint.
type Provider struct {
	// Name uniquely identifies the provider within the configuration.
	Name string `json:"name"`

	// URL is the upstream completion endpoint.
	URL string `json:"url"`

	// Endpoints optionally names per-operation endpoints. When set,
	// Endpoints.Completions takes precedence over URL.
	Endpoints Endpoints `json:"endpoints"`

	// Keys are the bearer tokens for this provider, in configuration order.
	Keys []string `json:"keys"`

	// Models are the alias mappings this provider serves.
	Models []Model `json:"models"`
}

// Endpoints holds per-operation upstream URLs.
type Endpoints struct {
	Completions string `json:"completions"`
}

// CompletionsURL returns the effective completion endpoint for the provider.
func (p *Provider) CompletionsURL() string {
	if p.Endpoints.Completions != "" {
		return p.Endpoints.Completions
	}
	return p.URL
}

// FindModel returns the first model entry with the given alias.
func (p *Provider) FindModel(alias string) (Model, bool) {
	for _, m := range p.Models {
		if m.Alias == alias {
			return m, true
		}
	}
	return Model{}, false
}

// Model maps a client-visible alias to the real upstream model name.
type Model struct {
	// Alias is the name exposed to clients. Multiple providers may serve
	// the same alias; all of them are selection candidates.
	Alias string `json:"alias"`

	// Model is the real name sent upstream.
	Model string `json:"model"`

	// Think marks models that preface output with a <think>...</think>
	// block which the no_think endpoint strips.
	Think bool `json:"think"`
}

// LogConfig holds logging options consumed by the logger setup.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `json:"level"`

	// Output is "stdout", "stderr", or a file path. Empty means stdout.
	Output string `json:"output"`

	// Pretty forces console formatting even when the output is not a TTY.
	Pretty bool `json:"pretty"`
}

// ParseLevel converts the configured level string to a zerolog level.
// Unknown or empty values default to info.
func (l LogConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Validate checks the configuration for structural errors.
// Returns the first problem found.
func (c *Config) Validate() error {
	if c.Auth == "" {
		return ErrAuthRequired
	}
	if len(c.Providers) == 0 {
		return ErrNoProviders
	}

	seen := make(map[string]struct{}, len(c.Providers))
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.Name == "" {
			return fmt.Errorf("config: provider %d has no name", i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("config: duplicate provider name %q", p.Name)
		}
		seen[p.Name] = struct{}{}

		if p.CompletionsURL() == "" {
			return fmt.Errorf("config: provider %q has no url", p.Name)
		}
		if len(p.Keys) == 0 {
			return fmt.Errorf("config: provider %q has no keys", p.Name)
		}
	}

	return nil
}

// DatabaseOption returns the PostgreSQL DSN as an Option; None means the
// persistent exchange store is disabled.
func (c *Config) DatabaseOption() mo.Option[string] {
	if c.Database == "" {
		return mo.None[string]()
	}
	return mo.Some(c.Database)
}

// EffectiveCacheSize returns the configured cache size with default fallback.
func (c *Config) EffectiveCacheSize() int {
	if c.CacheSize <= 0 {
		return DefaultCacheSize
	}
	return c.CacheSize
}

// Aliases returns every model alias across all providers, in configuration
// order with duplicates removed.
func (c *Config) Aliases() []string {
	var aliases []string
	seen := make(map[string]struct{})
	for i := range c.Providers {
		for _, m := range c.Providers[i].Models {
			if _, dup := seen[m.Alias]; dup {
				continue
			}
			seen[m.Alias] = struct{}{}
			aliases = append(aliases, m.Alias)
		}
	}
	return aliases
}
