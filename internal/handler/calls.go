package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/ai-code-relay/internal/apperror"
	"github.com/sakif/ai-code-relay/internal/model"
)

// CallLister reads the relay's call log.
type CallLister interface {
	ListCalls(ctx context.Context, limit int, kind string) ([]model.CallRecord, error)
}

// CallsHandler serves the call audit log.
type CallsHandler struct {
	calls  CallLister
	logger *slog.Logger
}

// NewCallsHandler creates a new CallsHandler.
func NewCallsHandler(calls CallLister, logger *slog.Logger) *CallsHandler {
	return &CallsHandler{calls: calls, logger: logger}
}

// HandleList handles GET /api/calls?limit=20&kind=run.
func (h *CallsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, apperror.ValidationFailed("limit", "limit must be an integer"))
			return
		}
		limit = n
	}

	calls, err := h.calls.ListCalls(r.Context(), limit, r.URL.Query().Get("kind"))
	if err != nil {
		h.logger.Error("listing calls failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, calls)
}
