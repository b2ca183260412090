package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads, restoring them after the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"CONFIG_FILE", "PORT", "WRITE_TIMEOUT", "LOG_LEVEL", "DB_PATH", "EXECUTOR", "RUN_TIMEOUT",
		"PISTON_URL", "PISTON_LANGUAGE", "PISTON_VERSION", "DOCKER_IMAGE", "DOCKER_POOL_SIZE",
		"OPENROUTER_API_KEY", "OPENROUTER_API_KEY_FILE", "OPENROUTER_URL",
		"ASSISTANT_MODEL", "ASSISTANT_REFERER", "ASK_TIMEOUT",
	} {
		t.Setenv(k, "") // registers restore
		os.Unsetenv(k)
	}
	// Keep a relay.yaml in the working directory from leaking in.
	t.Chdir(t.TempDir())
}

func TestLoad_MissingAPIKeyIsFatal(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	assert.Nil(t, cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingAPIKey))
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "piston", cfg.Executor.Backend)
	assert.Equal(t, 10*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, "python3", cfg.Executor.Piston.Language)
	assert.Equal(t, 30*time.Second, cfg.Assistant.Timeout)
	assert.Equal(t, "openchat/openchat-3.5-1210", cfg.Assistant.Model)
	assert.Equal(t, "sk-test", cfg.Assistant.APIKey)
	assert.Equal(t, "data/relay.db", cfg.Storage.DBPath)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "  sk-padded \n")
	t.Setenv("PORT", "9090")
	t.Setenv("EXECUTOR", "docker")
	t.Setenv("RUN_TIMEOUT", "5")
	t.Setenv("ASK_TIMEOUT", "20s")
	t.Setenv("ASSISTANT_MODEL", "meta-llama/llama-3-8b-instruct")
	t.Setenv("DB_PATH", "")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk-padded", cfg.Assistant.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "docker", cfg.Executor.Backend)
	assert.Equal(t, 5*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, 20*time.Second, cfg.Assistant.Timeout)
	assert.Equal(t, "meta-llama/llama-3-8b-instruct", cfg.Assistant.Model)
	assert.Equal(t, "", cfg.Storage.DBPath, "an explicitly empty DB_PATH disables the call log")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
executor:
  backend: docker
  timeout: 3s
  docker:
    pool_size: 5
assistant:
  api_key: sk-from-file
  model: from/yaml
`), 0o600))
	t.Setenv("ASSISTANT_MODEL", "from/env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "docker", cfg.Executor.Backend)
	assert.Equal(t, 3*time.Second, cfg.Executor.Timeout)
	assert.Equal(t, 5, cfg.Executor.Docker.PoolSize)
	assert.Equal(t, "python:3.12-alpine", cfg.Executor.Docker.Image, "unset YAML fields keep defaults")
	assert.Equal(t, "sk-from-file", cfg.Assistant.APIKey)
	assert.Equal(t, "from/env", cfg.Assistant.Model, "env wins over YAML")
}

func TestLoad_APIKeyFile(t *testing.T) {
	clearEnv(t)
	secret := filepath.Join(t.TempDir(), "key")
	require.NoError(t, os.WriteFile(secret, []byte("sk-secret\n"), 0o600))
	t.Setenv("OPENROUTER_API_KEY_FILE", secret)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", cfg.Assistant.APIKey)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name, key, value, want string
	}{
		{"bad port", "PORT", "eighty", "invalid PORT"},
		{"port out of range", "PORT", "70000", "server.port"},
		{"unknown executor", "EXECUTOR", "wasm", "executor.backend"},
		{"timeout too long", "RUN_TIMEOUT", "10m", "executor.timeout"},
		{"bad duration", "ASK_TIMEOUT", "soon", "invalid ASK_TIMEOUT"},
		{"bad log level", "LOG_LEVEL", "loud", "log.level"},
		{"ask timeout outlasts write timeout", "ASK_TIMEOUT", "60s", "server.write_timeout"},
		{"run timeout outlasts write timeout", "RUN_TIMEOUT", "42", "server.write_timeout"},
		{"write timeout too short", "WRITE_TIMEOUT", "20s", "server.write_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OPENROUTER_API_KEY", "sk-test")
			t.Setenv(tt.key, tt.value)

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_WriteTimeoutFollowsRelayTimeouts(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-test")
	t.Setenv("ASK_TIMEOUT", "60s")
	t.Setenv("WRITE_TIMEOUT", "65s")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 65*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, cfg.Assistant.Timeout)
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}
