// Package config loads the relay's configuration.
//
// Configuration is layered:
//  1. Built-in defaults
//  2. YAML config file (CONFIG_FILE, or ./relay.yaml when present)
//  3. Environment variable overrides
//  4. Secret file resolution (api_key_file)
//  5. Validation
//
// The chat credential is required: Load fails without it, and main refuses
// to start. It is never compiled into the binary.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the relay.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Assistant AssistantConfig `yaml:"assistant"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 15s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 45s, must outlast the slowest relay call
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error. default: info
}

// StorageConfig holds the call log settings.
type StorageConfig struct {
	DBPath string `yaml:"db_path"` // default: data/relay.db; empty disables the call log
}

// ExecutorConfig selects and configures the code execution backend.
type ExecutorConfig struct {
	Backend string        `yaml:"backend"` // "piston" or "docker", default: piston
	Timeout time.Duration `yaml:"timeout"` // default: 10s
	Piston  PistonConfig  `yaml:"piston"`
	Docker  DockerConfig  `yaml:"docker"`
}

// PistonConfig holds remote execution API settings.
type PistonConfig struct {
	URL      string `yaml:"url"`
	Language string `yaml:"language"`
	Version  string `yaml:"version"`
}

// DockerConfig holds local container sandbox settings.
type DockerConfig struct {
	Image       string  `yaml:"image"`
	MemoryLimit int64   `yaml:"memory_limit"` // bytes
	CPULimit    float64 `yaml:"cpu_limit"`
	PoolSize    int     `yaml:"pool_size"`
}

// AssistantConfig holds chat-completion backend settings.
type AssistantConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"api_key"`
	APIKeyFile string        `yaml:"api_key_file"` // file variant for api_key
	Model      string        `yaml:"model"`
	Referer    string        `yaml:"referer"`
	Title      string        `yaml:"title"`
	Timeout    time.Duration `yaml:"timeout"` // default: 30s
}

// ErrMissingAPIKey means no chat credential was configured.
var ErrMissingAPIKey = errors.New("assistant API key is required (set OPENROUTER_API_KEY)")

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    45 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{DBPath: "data/relay.db"},
		Executor: ExecutorConfig{
			Backend: "piston",
			Timeout: 10 * time.Second,
			Piston: PistonConfig{
				URL:      "https://emkc.org/api/v2/piston",
				Language: "python3",
				Version:  "*",
			},
			Docker: DockerConfig{
				Image:       "python:3.12-alpine",
				MemoryLimit: 128 * 1024 * 1024,
				CPULimit:    0.5,
				PoolSize:    3,
			},
		},
		Assistant: AssistantConfig{
			URL:     "https://openrouter.ai/api/v1/chat/completions",
			Model:   "openchat/openchat-3.5-1210",
			Referer: "https://ai-code-editor.vercel.app",
			Title:   "AI Code Editor",
			Timeout: 30 * time.Second,
		},
	}
}

// Load builds the configuration. configPath may be empty.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.Assistant.APIKey == "" && cfg.Assistant.APIKeyFile != "" {
		data, err := os.ReadFile(cfg.Assistant.APIKeyFile)
		if err != nil {
			return nil, fmt.Errorf("config: assistant.api_key_file: %w", err)
		}
		cfg.Assistant.APIKey = strings.TrimSpace(string(data))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("CONFIG_FILE"); p != "" {
		return p
	}
	if _, err := os.Stat("relay.yaml"); err == nil {
		return "relay.yaml"
	}
	return ""
}

// applyEnv overrides config fields from environment variables.
// A malformed numeric or duration value is an error, not silently ignored.
func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s value %q", key, v))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("invalid %s value %q", key, v))
				return
			}
			*dst = d
		}
	}

	num("PORT", &cfg.Server.Port)
	dur("WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	str("LOG_LEVEL", &cfg.Log.Level)
	// DB_PATH may be set to "" on purpose to turn the call log off.
	if v, ok := os.LookupEnv("DB_PATH"); ok {
		cfg.Storage.DBPath = v
	}

	str("EXECUTOR", &cfg.Executor.Backend)
	dur("RUN_TIMEOUT", &cfg.Executor.Timeout)
	str("PISTON_URL", &cfg.Executor.Piston.URL)
	str("PISTON_LANGUAGE", &cfg.Executor.Piston.Language)
	str("PISTON_VERSION", &cfg.Executor.Piston.Version)
	str("DOCKER_IMAGE", &cfg.Executor.Docker.Image)
	num("DOCKER_POOL_SIZE", &cfg.Executor.Docker.PoolSize)

	str("OPENROUTER_API_KEY", &cfg.Assistant.APIKey)
	str("OPENROUTER_API_KEY_FILE", &cfg.Assistant.APIKeyFile)
	str("OPENROUTER_URL", &cfg.Assistant.URL)
	str("ASSISTANT_MODEL", &cfg.Assistant.Model)
	str("ASSISTANT_REFERER", &cfg.Assistant.Referer)
	dur("ASK_TIMEOUT", &cfg.Assistant.Timeout)

	cfg.Assistant.APIKey = strings.TrimSpace(cfg.Assistant.APIKey)
	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("10s") and bare seconds ("10").
func parseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(v)
}

// Validate checks required fields and value ranges.
func (c *Config) Validate() error {
	var errs []error

	if c.Assistant.APIKey == "" {
		errs = append(errs, ErrMissingAPIKey)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	switch c.Executor.Backend {
	case "piston", "docker":
	default:
		errs = append(errs, fmt.Errorf("executor.backend must be \"piston\" or \"docker\", got %q", c.Executor.Backend))
	}
	if err := checkTimeout("executor.timeout", c.Executor.Timeout); err != nil {
		errs = append(errs, err)
	}
	if err := checkTimeout("assistant.timeout", c.Assistant.Timeout); err != nil {
		errs = append(errs, err)
	}
	if err := c.checkWriteTimeout(); err != nil {
		errs = append(errs, err)
	}
	if c.Assistant.URL == "" {
		errs = append(errs, fmt.Errorf("assistant.url is required"))
	}
	if c.Assistant.Model == "" {
		errs = append(errs, fmt.Errorf("assistant.model is required"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// writeMargin is the time a relay handler needs after its upstream deadline
// to write the error body.
const writeMargin = 5 * time.Second

// checkWriteTimeout keeps the server's write deadline behind both relay
// deadlines, or a timed-out relay call ends in a dropped connection instead
// of a JSON body.
func (c *Config) checkWriteTimeout() error {
	slowest := max(c.Executor.Timeout, c.Assistant.Timeout)
	if c.Server.WriteTimeout < slowest+writeMargin {
		return fmt.Errorf("server.write_timeout must be at least %s (slowest relay timeout %s plus %s), got %s",
			slowest+writeMargin, slowest, writeMargin, c.Server.WriteTimeout)
	}
	return nil
}

func checkTimeout(field string, d time.Duration) error {
	if d < time.Second || d > 120*time.Second {
		return fmt.Errorf("%s must be between 1s and 120s, got %s", field, d)
	}
	return nil
}

// ParseLevel maps a level name to an slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", s)
	}
	return l, nil
}
