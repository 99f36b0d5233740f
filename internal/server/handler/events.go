package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// EventService exposes the persisted event and audit logs.
type EventService interface {
	Events(ctx context.Context, opts domain.ListOpts) ([]domain.Event, error)
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
}

// EventHandler serves the event log and the audit trail.
type EventHandler struct {
	svc    EventService
	logger *slog.Logger
}

func NewEventHandler(svc EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{svc: svc, logger: logHandler(logger, "events")}
}

// ListEvents returns persisted events, oldest first. Clients resume a feed
// with after_seq.
// GET /api/events?after_seq=&limit=&offset=&since=&until=
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.svc.Events(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// ListAudit returns audit entries, newest first.
// GET /api/audit?actor=&limit=&offset=&since=&until=
func (h *EventHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := h.svc.AuditLog(r.Context(), opts)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
