// Package router selects an upstream provider and API key for a requested
// model alias using least-usage load balancing.
//
// The selection layer sits between the request handler and the forwarder:
//
//	Request -> Selector (provider + key) -> Forwarder (dispatch)
//
// A plain alias is matched against every provider's model list; the form
// "provider:model" forces a specific provider and sends the model name
// upstream unchanged.
package router

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/TnZzZHlp/ai-forward/internal/config"
	"github.com/TnZzZHlp/ai-forward/internal/usage"
)

// NoProviderError is returned when no configured provider serves the alias.
type NoProviderError struct {
	Model string
}

func (e NoProviderError) Error() string {
	return fmt.Sprintf("no provider handles model %q", e.Model)
}

// NoKeysError is returned when the chosen provider has no usable keys.
type NoKeysError struct {
	Provider string
}

func (e NoKeysError) Error() string {
	return fmt.Sprintf("provider %q has no available keys", e.Provider)
}

// Selection is the outcome of routing one request.
type Selection struct {
	// Provider is the chosen upstream provider.
	Provider *config.Provider

	// Key is the bearer token to authenticate with.
	Key string

	// Model is the real model name to send upstream.
	Model string

	// Think marks selections whose model prefaces output with a thinking
	// block (consulted by the no_think endpoint).
	Think bool
}

// Selector picks providers and keys by least usage.
// Safe for concurrent use; the read-min-and-increment sequence is atomic
// per counter map, so two concurrent selections never both observe and
// increment the same minimum.
type Selector struct {
	counters *usage.Counters
}

// NewSelector creates a Selector backed by the given usage counters.
func NewSelector(counters *usage.Counters) *Selector {
	return &Selector{counters: counters}
}

// Select resolves the alias to a provider, key, and real model name,
// incrementing both usage counters for the winners.
func (s *Selector) Select(cfg *config.Config, alias string) (Selection, error) {
	if name, model, forced := strings.Cut(alias, ":"); forced {
		return s.selectForced(cfg, alias, name, model)
	}

	candidates := lo.Filter(cfg.Providers, func(p config.Provider, _ int) bool {
		_, ok := p.FindModel(alias)
		return ok
	})
	if len(candidates) == 0 {
		return Selection{}, NoProviderError{Model: alias}
	}

	names := lo.Map(candidates, func(p config.Provider, _ int) string {
		return p.Name
	})
	chosen := s.counters.PickProvider(names)

	idx := lo.IndexOf(names, chosen)
	provider := &candidates[idx]

	key := s.counters.PickKey(provider.Keys)
	if key == "" {
		return Selection{}, NoKeysError{Provider: provider.Name}
	}

	// Present by construction of candidates.
	model, _ := provider.FindModel(alias)

	return Selection{
		Provider: provider,
		Key:      key,
		Model:    model.Model,
		Think:    model.Think,
	}, nil
}

// selectForced handles the "provider:model" form: the named provider is used
// regardless of usage, and the model name passes upstream unchanged.
func (s *Selector) selectForced(cfg *config.Config, alias, name, model string) (Selection, error) {
	var provider *config.Provider
	for i := range cfg.Providers {
		if cfg.Providers[i].Name == name {
			provider = &cfg.Providers[i]
			break
		}
	}
	if provider == nil {
		return Selection{}, NoProviderError{Model: alias}
	}

	s.counters.PickProvider([]string{provider.Name})

	key := s.counters.PickKey(provider.Keys)
	if key == "" {
		return Selection{}, NoKeysError{Provider: provider.Name}
	}

	// The think flag follows the provider's own mapping when one exists
	// for the forced name.
	think := false
	if m, ok := provider.FindModel(model); ok {
		think = m.Think
	}

	return Selection{
		Provider: provider,
		Key:      key,
		Model:    model,
		Think:    think,
	}, nil
}
