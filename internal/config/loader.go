package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DefaultPath is the config file location when CONFIG_PATH is not set.
const DefaultPath = "./config.json"

// EnvConfigPath is the environment variable overriding the config file path.
const EnvConfigPath = "CONFIG_PATH"

// ResolvePath returns the config file path, preferring the explicit argument,
// then the CONFIG_PATH environment variable, then DefaultPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads, parses, and validates a JSON configuration file.
// Environment variables in the format ${VAR_NAME} are expanded before parsing.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return LoadFromReader(file)
}

// LoadFromReader reads, parses, and validates JSON configuration from an
// io.Reader. Environment variables in the format ${VAR_NAME} are expanded
// before parsing.
func LoadFromReader(r io.Reader) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	expanded := os.ExpandEnv(string(content))

	var cfg Config
	if err := json.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
