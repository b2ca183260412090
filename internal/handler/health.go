package handler

import "net/http"

// HealthHandler reports liveness and which execution backend is in use.
type HealthHandler struct {
	executor string
}

func NewHealthHandler(executorName string) *HealthHandler {
	return &HealthHandler{executor: executorName}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"executor": h.executor,
	})
}
