package handler

import (
	"context"
	"log/slog"
	"net/http"
	"path"

	"github.com/alanyoungcy/dexengine/internal/domain"
)

// archiveRoot is the object prefix every order archive lives under.
const archiveRoot = "orders"

// ArchiveService exposes the cold storage of orders that left the book.
type ArchiveService interface {
	Archives(ctx context.Context, reason string) ([]domain.BlobInfo, error)
	ArchivedOrders(ctx context.Context, objectPath string) ([]domain.Order, error)
}

// ArchiveHandler serves archived orders.
type ArchiveHandler struct {
	svc    ArchiveService
	logger *slog.Logger
}

func NewArchiveHandler(svc ArchiveService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{svc: svc, logger: logHandler(logger, "archives")}
}

// ListArchives returns the archive objects for a removal reason.
// GET /api/archives/{reason}
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	reason, ok := archiveReason(r.PathValue("reason"))
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidParam("reason", r.PathValue("reason")).Error())
		return
	}
	infos, err := h.svc.Archives(r.Context(), reason)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, infos)
}

// GetArchive returns the orders stored in one archive object, addressed
// relative to its reason, e.g. /api/archives/filled/2026/03/01/<ts>.jsonl.
// GET /api/archives/{reason}/{object...}
func (h *ArchiveHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	reason, ok := archiveReason(r.PathValue("reason"))
	if !ok {
		writeError(w, http.StatusBadRequest, errInvalidParam("reason", r.PathValue("reason")).Error())
		return
	}
	object := r.PathValue("object")
	p := path.Join(archiveRoot, reason, object)
	if object == "" || p != archiveRoot+"/"+reason+"/"+object {
		writeError(w, http.StatusBadRequest, errInvalidParam("object", object).Error())
		return
	}
	orders, err := h.svc.ArchivedOrders(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func archiveReason(s string) (string, bool) {
	switch s {
	case "filled", "expired":
		return s, true
	default:
		return "", false
	}
}
