// Package executor defines the contract every code-execution backend satisfies.
//
// Two backends live in sub-packages:
//   - piston: forwards code to the remote Piston execution API over HTTP
//   - docker: runs code in a local, resource-limited container
//
// Both turn their failures into apperror kinds (Upstream, Timeout, Transport)
// so the HTTP layer never needs to know which backend is configured.
package executor

import (
	"context"
	"time"
)

// ExecutionRequest represents a request to execute Python code.
type ExecutionRequest struct {
	Code string `json:"code"`
}

// ExecutionResult represents the captured output of one run.
// Only stdout and stderr go back to the caller; the rest feeds logs and metrics.
type ExecutionResult struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"-"`
	Duration time.Duration `json:"-"`
}

// Executor represents the core interface for running code in an isolated environment.
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
	// Name identifies the backend in logs, metrics and the call log.
	Name() string
}
