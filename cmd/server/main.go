// Package main is the entry point for the AI code relay.
//
// The main package stays minimal. Its job is to:
//  1. Load configuration (defaults, relay.yaml, env vars)
//  2. Create dependencies (logger, execution backend, chat client, call log)
//  3. Start the server
//
// All actual logic lives in the internal/ packages.
package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sakif/ai-code-relay/internal/assistant"
	"github.com/sakif/ai-code-relay/internal/config"
	"github.com/sakif/ai-code-relay/internal/executor"
	"github.com/sakif/ai-code-relay/internal/executor/docker"
	"github.com/sakif/ai-code-relay/internal/executor/piston"
	"github.com/sakif/ai-code-relay/internal/repository"
	"github.com/sakif/ai-code-relay/internal/repository/sqlite"
	"github.com/sakif/ai-code-relay/internal/server"
)

func main() {
	// === 1. LOAD CONFIGURATION ===
	// A missing OPENROUTER_API_KEY is fatal: the relay must not start
	// without a credential, and none is compiled in.
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		if errors.Is(err, config.ErrMissingAPIKey) {
			slog.Error("set OPENROUTER_API_KEY or OPENROUTER_API_KEY_FILE and restart")
		}
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	level, _ := config.ParseLevel(cfg.Log.Level) // already validated by Load
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// === 3. EXECUTION BACKEND ===
	exec, err := newExecutor(cfg.Executor, logger)
	if err != nil {
		logger.Error("failed to start execution backend",
			slog.String("backend", cfg.Executor.Backend),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer exec.Close()

	// === 4. ASSISTANT CLIENT ===
	ask, err := assistant.New(assistant.Config{
		URL:     cfg.Assistant.URL,
		APIKey:  cfg.Assistant.APIKey,
		Model:   cfg.Assistant.Model,
		Referer: cfg.Assistant.Referer,
		Title:   cfg.Assistant.Title,
		Timeout: cfg.Assistant.Timeout,
	}, logger)
	if err != nil {
		logger.Error("failed to create assistant client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer ask.Close()

	// === 5. CALL LOG ===
	// Optional. An empty DB_PATH turns it off.
	var calls repository.CallRepository
	if cfg.Storage.DBPath != "" {
		db, err := openCallLog(cfg.Storage.DBPath)
		if err != nil {
			logger.Error("failed to open call log",
				slog.String("path", cfg.Storage.DBPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		defer db.Close()
		calls = db
	} else {
		logger.Warn("DB_PATH is empty, call log disabled")
	}

	// === 6. CREATE AND START THE SERVER ===
	srv, err := server.New(server.Config{
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, server.Deps{
		Executor:  exec,
		Assistant: ask,
		Calls:     calls,
	}, logger)
	if err != nil {
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start() blocks until the server is shut down (Ctrl+C or SIGTERM).
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// closingExecutor is an Executor that owns resources.
type closingExecutor interface {
	executor.Executor
	io.Closer
}

func newExecutor(cfg config.ExecutorConfig, logger *slog.Logger) (closingExecutor, error) {
	switch cfg.Backend {
	case "docker":
		dc := docker.DefaultConfig()
		dc.Image = cfg.Docker.Image
		dc.MemoryLimit = cfg.Docker.MemoryLimit
		dc.CPULimit = cfg.Docker.CPULimit
		dc.PoolSize = cfg.Docker.PoolSize
		dc.Timeout = cfg.Timeout
		return docker.New(dc, logger)
	default:
		pc := piston.DefaultConfig()
		pc.BaseURL = cfg.Piston.URL
		pc.Language = cfg.Piston.Language
		pc.Version = cfg.Piston.Version
		pc.Timeout = cfg.Timeout
		return piston.New(pc, logger), nil
	}
}

func openCallLog(dbPath string) (*sqlite.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	return sqlite.New(dbPath)
}
