package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `{
	"auth": "secret-token",
	"port": 8080,
	"providers": [
		{
			"name": "openai",
			"url": "https://api.openai.com/v1/chat/completions",
			"keys": ["sk-1", "sk-2"],
			"models": [
				{"alias": "gpt", "model": "gpt-4o"},
				{"alias": "thinker", "model": "qwq-32b", "think": true}
			]
		}
	],
	"cache_size": 50
}`

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "secret-token", cfg.Auth)
	assert.Equal(t, 8080, cfg.Port)
	require.Len(t, cfg.Providers, 1)

	p := cfg.Providers[0]
	assert.Equal(t, "openai", p.Name)
	assert.Equal(t, []string{"sk-1", "sk-2"}, p.Keys)
	require.Len(t, p.Models, 2)
	assert.True(t, p.Models[1].Think)
	assert.Equal(t, 50, cfg.EffectiveCacheSize())
}

func TestLoadFromReader_EnvExpansion(t *testing.T) {
	t.Setenv("AI_FORWARD_TEST_KEY", "sk-expanded")

	raw := strings.ReplaceAll(sampleConfig, "sk-1", "${AI_FORWARD_TEST_KEY}")
	cfg, err := LoadFromReader(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "sk-expanded", cfg.Providers[0].Keys[0])
}

func TestLoadFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"auth": `},
		{"missing auth", `{"port": 1, "providers": [{"name":"a","url":"u","keys":["k"]}]}`},
		{"no providers", `{"auth": "x", "providers": []}`},
		{"provider without keys", `{"auth":"x","providers":[{"name":"a","url":"u","keys":[]}]}`},
		{"provider without url", `{"auth":"x","providers":[{"name":"a","keys":["k"]}]}`},
		{"duplicate provider", `{"auth":"x","providers":[
			{"name":"a","url":"u","keys":["k"]},
			{"name":"a","url":"u","keys":["k"]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFromReader(strings.NewReader(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestProvider_CompletionsURL(t *testing.T) {
	t.Parallel()

	p := Provider{URL: "https://a.example/v1"}
	assert.Equal(t, "https://a.example/v1", p.CompletionsURL())

	p.Endpoints.Completions = "https://b.example/v1/chat/completions"
	assert.Equal(t, "https://b.example/v1/chat/completions", p.CompletionsURL())
}

func TestConfig_Aliases(t *testing.T) {
	t.Parallel()

	cfg := &Config{
		Providers: []Provider{
			{Name: "a", Models: []Model{{Alias: "gpt"}, {Alias: "mini"}}},
			{Name: "b", Models: []Model{{Alias: "gpt"}}},
		},
	}

	assert.Equal(t, []string{"gpt", "mini"}, cfg.Aliases())
}

func TestConfig_DatabaseOption(t *testing.T) {
	t.Parallel()

	assert.True(t, (&Config{}).DatabaseOption().IsAbsent())

	dsn, ok := (&Config{Database: "postgres://localhost/ai"}).DatabaseOption().Get()
	assert.True(t, ok)
	assert.Equal(t, "postgres://localhost/ai", dsn)
}

func TestLogConfig_ParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, zerolog.DebugLevel, LogConfig{Level: "debug"}.ParseLevel())
	assert.Equal(t, zerolog.WarnLevel, LogConfig{Level: "WARN"}.ParseLevel())
	assert.Equal(t, zerolog.InfoLevel, LogConfig{}.ParseLevel())
	assert.Equal(t, zerolog.InfoLevel, LogConfig{Level: "bogus"}.ParseLevel())
}

func TestRuntime_Reload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	runtime := NewRuntime(cfg, path)
	assert.Equal(t, "secret-token", runtime.Get().Auth)

	// Rewrite the file and reload.
	updated := strings.ReplaceAll(sampleConfig, "secret-token", "rotated")
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.NoError(t, runtime.Reload())
	assert.Equal(t, "rotated", runtime.Get().Auth)

	// A broken file keeps the previous snapshot.
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	assert.Error(t, runtime.Reload())
	assert.Equal(t, "rotated", runtime.Get().Auth)
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, "/tmp/c.json", ResolvePath("/tmp/c.json"))

	t.Setenv(EnvConfigPath, "/etc/ai-forward/config.json")
	assert.Equal(t, "/etc/ai-forward/config.json", ResolvePath(""))

	t.Setenv(EnvConfigPath, "")
	assert.Equal(t, DefaultPath, ResolvePath(""))
}
