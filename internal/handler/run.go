package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/ai-code-relay/internal/executor"
)

// Runner executes code on the configured backend.
type Runner interface {
	Run(ctx context.Context, code string) (*executor.ExecutionResult, error)
}

// RunResponse is the success body of POST /run.
type RunResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// RunErrorResponse is the failure body of POST /run.
type RunErrorResponse struct {
	Error string `json:"error"`
}

// RunHandler handles code execution requests.
type RunHandler struct {
	runner Runner
	logger *slog.Logger
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(runner Runner, logger *slog.Logger) *RunHandler {
	return &RunHandler{
		runner: runner,
		logger: logger,
	}
}

// HandleRun executes {"code": "..."} and answers {stdout, stderr} or {error}.
func (h *RunHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req executor.ExecutionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid run request body", slog.String("error", err.Error()))
		_, msg := relayFailure(err, "")
		writeJSON(w, http.StatusBadRequest, RunErrorResponse{Error: msg})
		return
	}

	result, err := h.runner.Run(r.Context(), req.Code)
	if err != nil {
		status, msg := relayFailure(err, "Request failed: internal error")
		writeJSON(w, status, RunErrorResponse{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		Stdout: result.Stdout,
		Stderr: result.Stderr,
	})
}
