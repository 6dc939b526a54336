package handlers

import (
	"net/http"
	"strconv"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// AuditHandler serves the append-only audit log
type AuditHandler struct {
	repo   contracts.AuditRepository
	logger *logger.Logger
}

func NewAuditHandler(repo contracts.AuditRepository, log *logger.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, logger: log}
}

// ListByOrder returns the full trail for one order
// GET /api/orders/{id}/audit
func (h *AuditHandler) ListByOrder(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.ListByOrder(r.Context(), orderID(r))
	if err != nil {
		h.logger.WithError(err).Error("Failed to list audit entries")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
	})
}

// ListAfter pages through the global log in id order
// GET /api/audit?after=0&limit=100
func (h *AuditHandler) ListAfter(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var after int64
	if raw := q.Get("after"); raw != "" {
		after, _ = strconv.ParseInt(raw, 10, 64)
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}

	entries, err := h.repo.ListAfter(r.Context(), after, limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to page audit log")
		respondError(w, err)
		return
	}

	next := after
	if len(entries) > 0 {
		next = entries[len(entries)-1].ID
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(entries),
		"entries":     entries,
		"next_cursor": next,
	})
}
