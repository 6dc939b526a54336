package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/bastion/backend/internal/approval"
	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/staging"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// OrderHandler handles order lifecycle API endpoints
// ⭐ SSOT: 주문 API 핸들러는 이 구조체에서만
type OrderHandler struct {
	engine   *staging.Engine
	workflow *approval.Workflow
	logger   *logger.Logger
}

func NewOrderHandler(engine *staging.Engine, workflow *approval.Workflow, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		engine:   engine,
		workflow: workflow,
		logger:   log,
	}
}

// orderID pulls the path id (라우터 정규식이 숫자를 보장)
func orderID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

// ============================================================
// Lifecycle
// ============================================================

// Stage stages a new order
// POST /api/orders
func (h *OrderHandler) Stage(w http.ResponseWriter, r *http.Request) {
	var draft staging.OrderDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.Stage(r.Context(), draft)
	if err != nil {
		h.logger.WithError(err).Warn("Stage request failed")
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, order)
}

// Get returns one order
// GET /api/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.engine.Get(r.Context(), orderID(r))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// List returns a filtered order page
// GET /api/orders?status=PENDING,STAGED&symbol=SPY&limit=50&cursor=0
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// 심볼은 저장 시와 같은 정규화 (소문자 조회도 매칭되게)
	filter := contracts.OrderFilter{
		Symbol:    strings.ToUpper(strings.TrimSpace(q.Get("symbol"))),
		CreatedBy: q.Get("created_by"),
	}
	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := contracts.OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
			if !status.Valid() {
				respondMessage(w, http.StatusBadRequest, "unknown status: "+s)
				return
			}
			filter.Status = append(filter.Status, status)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := q.Get("cursor"); raw != "" {
		filter.Cursor, _ = strconv.ParseInt(raw, 10, 64)
	}

	page, err := h.engine.List(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list orders")
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// Update applies pre-approval changes
// PATCH /api/orders/{id}
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req staging.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.Update(r.Context(), orderID(r), req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// actorRequest carries the acting identity for a transition
type actorRequest struct {
	Actor  string `json:"actor"`
	Reason string `json:"reason,omitempty"`
}

// Approve approves a pending order
// POST /api/orders/{id}/approve
func (h *OrderHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.Approve(r.Context(), orderID(r), req.Actor)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// Reject rejects a pending order with a mandatory reason
// POST /api/orders/{id}/reject
func (h *OrderHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.Reject(r.Context(), orderID(r), req.Actor, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// Cancel abandons a staged/pending order
// POST /api/orders/{id}/cancel
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.Cancel(r.Context(), orderID(r), req.Actor, req.Reason)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// MarkSubmitted records venue hand-off
// POST /api/orders/{id}/submit
func (h *OrderHandler) MarkSubmitted(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.MarkSubmitted(r.Context(), orderID(r), req.Actor)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// MarkExecuted records fill confirmation
// POST /api/orders/{id}/execute
func (h *OrderHandler) MarkExecuted(w http.ResponseWriter, r *http.Request) {
	var req actorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := h.engine.MarkExecuted(r.Context(), orderID(r), req.Actor)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// ============================================================
// Approval desk
// ============================================================

// Queue returns the pending queue (리스크 내림차순, 오래된 것 우선)
// GET /api/approvals/queue
func (h *OrderHandler) Queue(w http.ResponseWriter, r *http.Request) {
	queue, err := h.workflow.Queue(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to build approval queue")
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":  len(queue),
		"orders": queue,
	})
}

// bulkFilter selects orders for a bulk operation (List와 동일한 해석)
type bulkFilter struct {
	Status    []string `json:"status,omitempty"`
	Symbol    string   `json:"symbol,omitempty"`
	CreatedBy string   `json:"created_by,omitempty"`
}

func (f *bulkFilter) toOrderFilter() (contracts.OrderFilter, error) {
	filter := contracts.OrderFilter{
		Symbol:    strings.ToUpper(strings.TrimSpace(f.Symbol)),
		CreatedBy: f.CreatedBy,
	}
	for _, s := range f.Status {
		status := contracts.OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
		if !status.Valid() {
			return filter, contracts.NewValidationError("status", "unknown status: "+s)
		}
		filter.Status = append(filter.Status, status)
	}
	return filter, nil
}

// bulkRequest carries either explicit ids or a filter, plus the acting identity
type bulkRequest struct {
	OrderIDs []int64     `json:"order_ids,omitempty"`
	Filter   *bulkFilter `json:"filter,omitempty"`
	Actor    string      `json:"actor"`
	Reason   string      `json:"reason,omitempty"`
}

// BulkApprove approves a batch, reporting per-order outcomes.
// 대상은 order_ids 또는 filter 중 하나로 지정
// POST /api/approvals/bulk-approve
func (h *OrderHandler) BulkApprove(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Filter != nil:
		filter, err := req.Filter.toOrderFilter()
		if err != nil {
			respondError(w, err)
			return
		}
		results, err := h.workflow.BulkApproveMatching(r.Context(), filter, req.Actor)
		if err != nil {
			h.logger.WithError(err).Error("Bulk approve filter resolution failed")
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})

	case len(req.OrderIDs) > 0:
		results := h.workflow.BulkApprove(r.Context(), req.OrderIDs, req.Actor)
		respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})

	default:
		respondMessage(w, http.StatusBadRequest, "order_ids or filter is required")
	}
}

// BulkReject rejects a batch with one shared reason
// POST /api/approvals/bulk-reject
func (h *OrderHandler) BulkReject(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch {
	case req.Filter != nil:
		filter, err := req.Filter.toOrderFilter()
		if err != nil {
			respondError(w, err)
			return
		}
		results, err := h.workflow.BulkRejectMatching(r.Context(), filter, req.Actor, req.Reason)
		if err != nil {
			h.logger.WithError(err).Error("Bulk reject filter resolution failed")
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})

	case len(req.OrderIDs) > 0:
		results := h.workflow.BulkReject(r.Context(), req.OrderIDs, req.Actor, req.Reason)
		respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})

	default:
		respondMessage(w, http.StatusBadRequest, "order_ids or filter is required")
	}
}

// Sweep runs the expiry sweep immediately
// POST /api/approvals/sweep
func (h *OrderHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.workflow.ExpireStale(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Manual expiry sweep failed")
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
