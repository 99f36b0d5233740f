package handler

import (
	"net/http"
)

// StatusHandler serves the engine summary.
type StatusHandler struct {
	Mode   string
	status func() any
}

// NewStatusHandler creates a StatusHandler reporting mode and the value
// returned by status.
func NewStatusHandler(mode string, status func() any) *StatusHandler {
	return &StatusHandler{Mode: mode, status: status}
}

// GetStatus responds with the deployment mode and engine summary.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":   h.Mode,
		"engine": h.status(),
	})
}
