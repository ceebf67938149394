package proxy

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/TnZzZHlp/ai-forward/internal/config"
	"github.com/TnZzZHlp/ai-forward/internal/usage"
)

func adminFixture(t *testing.T) (*Admin, *usage.Counters, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"auth": "tok",
		"port": 8080,
		"providers": [
			{
				"name": "A",
				"url": "https://a.example/v1/chat/completions",
				"keys": ["ka"],
				"models": [
					{"alias": "gpt", "model": "real-gpt"},
					{"alias": "mini", "model": "real-mini", "think": true}
				]
			},
			{
				"name": "B",
				"url": "https://b.example/v1/chat/completions",
				"keys": ["kb"],
				"models": [{"alias": "claude", "model": "real-claude"}]
			}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	counters := usage.NewCounters()
	return NewAdmin(config.NewRuntime(cfg, path), counters), counters, path
}

func get(h http.HandlerFunc, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAdmin_Models(t *testing.T) {
	t.Parallel()

	admin, _, _ := adminFixture(t)
	rec := get(admin.Models, "/v1/models")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Equal(t, "list", gjson.Get(body, "object").String())

	data := gjson.Get(body, "data").Array()
	require.Len(t, data, 3)

	ids := make([]string, 0, len(data))
	for _, entry := range data {
		ids = append(ids, entry.Get("id").String())
		assert.Equal(t, "model", entry.Get("object").String())
		assert.Equal(t, int64(0), entry.Get("created").Int())
		assert.Equal(t, "ai_forward", entry.Get("owned_by").String())
	}
	assert.Equal(t, []string{"gpt", "mini", "claude"}, ids)
}

func TestAdmin_Stats(t *testing.T) {
	t.Parallel()

	admin, counters, _ := adminFixture(t)
	counters.PickProvider([]string{"A"})
	counters.PickProvider([]string{"A"})
	counters.PickProvider([]string{"B"})

	rec := get(admin.Stats, "/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	rows := gjson.Get(rec.Body.String(), "provider_usage").Array()
	require.Len(t, rows, 2)

	byName := map[string]int64{}
	for _, row := range rows {
		byName[row.Get("provider").String()] = row.Get("usage").Int()
	}
	assert.Equal(t, int64(2), byName["A"])
	assert.Equal(t, int64(1), byName["B"])
}

func TestAdmin_ResetClearsCountersAndReloads(t *testing.T) {
	t.Parallel()

	admin, counters, path := adminFixture(t)
	counters.PickProvider([]string{"A"})

	// Change the file on disk; reset must pick it up.
	updated := `{
		"auth": "tok-rotated",
		"port": 8080,
		"providers": [
			{"name": "A", "url": "https://a.example", "keys": ["ka"], "models": []}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	rec := get(admin.Reset, "/reset")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stats reset and config reloaded",
		gjson.Get(rec.Body.String(), "message").String())

	assert.Equal(t, uint64(0), counters.Provider("A"))
	assert.Equal(t, "tok-rotated", admin.runtime.Get().Auth)
}

func TestAdmin_ResetReloadFailureKeepsConfig(t *testing.T) {
	t.Parallel()

	admin, _, path := adminFixture(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	rec := get(admin.Reset, "/reset")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "service_error", gjson.Get(rec.Body.String(), "error.type").String())

	// The previous snapshot stays live.
	assert.Equal(t, "tok", admin.runtime.Get().Auth)
	assert.Len(t, admin.runtime.Get().Providers, 2)
}

func TestAdmin_Health(t *testing.T) {
	t.Parallel()

	admin, _, _ := adminFixture(t)
	rec := get(admin.Health, "/health")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", gjson.Get(rec.Body.String(), "status").String())

	stamp := gjson.Get(rec.Body.String(), "timestamp").String()
	_, err := time.Parse(time.RFC3339, stamp)
	assert.NoError(t, err)
}

func TestAdmin_Version(t *testing.T) {
	t.Parallel()

	admin, _, _ := adminFixture(t)
	rec := get(admin.Version, "/version")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, gjson.Get(rec.Body.String(), "version").String())
	assert.True(t, gjson.Get(rec.Body.String(), "build_time").Exists())
}
