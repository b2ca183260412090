package handler

import (
	"context"
	"log/slog"
	"net/http"
)

// Asker relays a prompt to the chat backend.
type Asker interface {
	Ask(ctx context.Context, prompt, userCode string) (string, error)
}

// AskRequest is the body of POST /ask-ai. UserCode is optional.
type AskRequest struct {
	Prompt   string `json:"prompt"`
	UserCode string `json:"user_code"`
}

// AskResponse is the body of POST /ask-ai, on success and on failure alike.
type AskResponse struct {
	Response string `json:"response"`
}

// AssistantHandler handles AI assistant requests.
type AssistantHandler struct {
	asker  Asker
	logger *slog.Logger
}

// NewAssistantHandler creates a new AssistantHandler.
func NewAssistantHandler(asker Asker, logger *slog.Logger) *AssistantHandler {
	return &AssistantHandler{
		asker:  asker,
		logger: logger,
	}
}

// HandleAsk answers {"prompt", "user_code"} with {"response"}.
// Failures are reported inside "response" too, prefixed with a warning sign.
func (h *AssistantHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Warn("invalid ask request body", slog.String("error", err.Error()))
		_, msg := relayFailure(err, "")
		writeJSON(w, http.StatusBadRequest, AskResponse{Response: msg})
		return
	}

	text, err := h.asker.Ask(r.Context(), req.Prompt, req.UserCode)
	if err != nil {
		status, msg := relayFailure(err, "Exception: internal error")
		writeJSON(w, status, AskResponse{Response: msg})
		return
	}

	writeJSON(w, http.StatusOK, AskResponse{Response: text})
}
