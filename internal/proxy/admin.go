package proxy

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/TnZzZHlp/ai-forward/internal/config"
	"github.com/TnZzZHlp/ai-forward/internal/usage"
	"github.com/TnZzZHlp/ai-forward/internal/version"
)

// modelEntry is one row of the /v1/models catalog.
type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type modelList struct {
	Object string       `json:"object"`
	Data   []modelEntry `json:"data"`
}

// Admin serves the management endpoints.
type Admin struct {
	runtime  *config.Runtime
	counters *usage.Counters
}

// NewAdmin creates the admin handler set.
func NewAdmin(runtime *config.Runtime, counters *usage.Counters) *Admin {
	return &Admin{runtime: runtime, counters: counters}
}

// Models lists every alias across all providers as a virtual model catalog.
func (a *Admin) Models(w http.ResponseWriter, r *http.Request) {
	cfg := a.runtime.Get()

	entries := lo.FlatMap(cfg.Providers, func(p config.Provider, _ int) []modelEntry {
		return lo.Map(p.Models, func(m config.Model, _ int) modelEntry {
			return modelEntry{
				ID:      m.Alias,
				Object:  "model",
				Created: 0,
				OwnedBy: "ai_forward",
			}
		})
	})

	writeJSON(w, http.StatusOK, modelList{Object: "list", Data: entries})
}

// Stats reports per-provider usage counts.
func (a *Admin) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]usage.ProviderUsage{
		"provider_usage": a.counters.ProviderSnapshot(),
	})
}

// Reset clears both usage maps and reloads the configuration file.
// A reload failure keeps the previous snapshot and reports 500.
func (a *Admin) Reset(w http.ResponseWriter, r *http.Request) {
	a.counters.Reset()

	if err := a.runtime.Reload(); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("config reload failed")
		WriteTypedError(w, http.StatusInternalServerError, "service_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "stats reset and config reloaded",
	})
}

// Health is the liveness probe.
func (a *Admin) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Version reports the build version and time.
func (a *Admin) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"build_time": version.BuildTime,
	})
}
