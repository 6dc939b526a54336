package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bastion/backend/internal/api/handlers"
	"github.com/wonny/bastion/backend/internal/approval"
	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/orders"
	"github.com/wonny/bastion/backend/internal/risk"
	"github.com/wonny/bastion/backend/internal/staging"
	"github.com/wonny/bastion/backend/pkg/config"
	"github.com/wonny/bastion/backend/pkg/logger"
)

type scriptedScorer struct{ total float64 }

func (s *scriptedScorer) Score(order *contracts.Order, snap *contracts.MarketSnapshot) *risk.Assessment {
	return &risk.Assessment{
		Total:   s.total,
		Factors: []contracts.RiskFactor{{Name: "position_size", Score: s.total, Weight: 1.0}},
	}
}

type passAllEvaluator struct{}

func (passAllEvaluator) Evaluate(ctx context.Context, order *contracts.Order, snap *contracts.MarketSnapshot) []contracts.RuleResult {
	return []contracts.RuleResult{{Rule: "position-limit", Passed: true}}
}

type fixedSnapshots struct{}

func (fixedSnapshots) Snapshot(ctx context.Context, symbol string) (*contracts.MarketSnapshot, error) {
	return &contracts.MarketSnapshot{
		Symbol: symbol,
		Price:  100, HasPrice: true,
		Volatility: 0.2, HasVolatility: true,
		MarketTrend: 0.5, HasTrend: true,
		PortfolioValue: 1_000_000, HasPortfolioData: true,
	}, nil
}

func newTestRouter(t *testing.T) (http.Handler, *scriptedScorer) {
	t.Helper()

	policy := config.PolicyConfig{
		HighRiskThreshold:   75.0,
		LargeOrderQty:       1000,
		WeightPositionSize:  0.30,
		WeightVolatility:    0.25,
		WeightConcentration: 0.20,
		WeightMarketRegime:  0.15,
		WeightStrategy:      0.10,
		MissingDataCeiling:  90.0,
		MaxOrderAge:         24 * time.Hour,
		RetryMaxAttempts:    3,
		RetryBackoff:        time.Millisecond,
		ScoringTimeout:      time.Second,
	}

	log := logger.NewWriter(io.Discard)
	repo := orders.NewMemory()
	scorer := &scriptedScorer{total: 80}
	engine := staging.NewEngine(repo, scorer, passAllEvaluator{}, fixedSnapshots{},
		contracts.SystemClock{}, policy, log)
	workflow := approval.NewWorkflow(engine, 4, log)

	router := NewRouter(
		handlers.NewOrderHandler(engine, workflow, log),
		handlers.NewAuditHandler(repo, log),
		log,
	)
	return router, scorer
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func stageOrder(t *testing.T, router http.Handler) contracts.Order {
	return stageSymbolOrder(t, router, "SPY")
}

func stageSymbolOrder(t *testing.T, router http.Handler, symbol string) contracts.Order {
	t.Helper()

	rec := doJSON(t, router, "POST", "/api/orders", map[string]interface{}{
		"symbol":     symbol,
		"side":       "BUY",
		"qty":        100,
		"order_type": "MARKET",
		"created_by": "trader-1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var order contracts.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &order))
	return order
}

func TestRouter_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bastion-api")
}

func TestRouter_StageAndGet(t *testing.T) {
	router, _ := newTestRouter(t)

	order := stageOrder(t, router)
	assert.Equal(t, contracts.StatusPending, order.Status)

	rec := doJSON(t, router, "GET", fmt.Sprintf("/api/orders/%d", order.ID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_ValidationMapsTo400(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/orders", map[string]interface{}{
		"symbol": "", "side": "BUY", "qty": 0, "order_type": "MARKET", "created_by": "trader-1",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp struct {
		Kind   string                 `json:"kind"`
		Fields []contracts.FieldError `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation", resp.Kind)
	assert.Len(t, resp.Fields, 2)
}

func TestRouter_NotFoundMapsTo404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "GET", "/api/orders/9999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_InvalidTransitionMapsTo409(t *testing.T) {
	router, scorer := newTestRouter(t)
	scorer.total = 10 // staged — 승인 불가

	order := stageOrder(t, router)
	rec := doJSON(t, router, "POST", fmt.Sprintf("/api/orders/%d/approve", order.ID),
		map[string]string{"actor": "risk-desk-1"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_transition")
}

func TestRouter_ApproveFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	order := stageOrder(t, router)

	rec := doJSON(t, router, "POST", fmt.Sprintf("/api/orders/%d/approve", order.ID),
		map[string]string{"actor": "risk-desk-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var approved contracts.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &approved))
	assert.Equal(t, contracts.StatusApproved, approved.Status)

	// 감사 로그 확인
	rec = doJSON(t, router, "GET", fmt.Sprintf("/api/orders/%d/audit", order.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var audit struct {
		Count   int                     `json:"count"`
		Entries []*contracts.AuditEntry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &audit))
	assert.Equal(t, 2, audit.Count)
	assert.Equal(t, contracts.TransitionApproved, audit.Entries[1].Kind)
}

func TestRouter_Queue(t *testing.T) {
	router, _ := newTestRouter(t)
	stageOrder(t, router)
	stageOrder(t, router)

	rec := doJSON(t, router, "GET", "/api/approvals/queue", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
}

func TestRouter_BulkApprove(t *testing.T) {
	router, _ := newTestRouter(t)
	a := stageOrder(t, router)
	b := stageOrder(t, router)

	rec := doJSON(t, router, "POST", "/api/approvals/bulk-approve", map[string]interface{}{
		"order_ids": []int64{a.ID, b.ID, 9999},
		"actor":     "risk-desk-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []approval.BulkResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 3)
	assert.True(t, resp.Results[0].OK)
	assert.True(t, resp.Results[1].OK)
	assert.False(t, resp.Results[2].OK)
	assert.Equal(t, "not_found", resp.Results[2].Kind)
}

func TestRouter_BulkApproveByFilter(t *testing.T) {
	router, _ := newTestRouter(t)

	stageSymbolOrder(t, router, "TSLA")
	stageSymbolOrder(t, router, "TSLA")
	spy := stageOrder(t, router) // 심볼 불일치, 대상 제외

	rec := doJSON(t, router, "POST", "/api/approvals/bulk-approve", map[string]interface{}{
		"filter": map[string]interface{}{
			"status": []string{"PENDING"},
			"symbol": "TSLA",
		},
		"actor": "risk-desk-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Results []approval.BulkResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 2)
	for _, r := range resp.Results {
		assert.True(t, r.OK)
	}

	// SPY는 그대로 pending
	rec = doJSON(t, router, "GET", fmt.Sprintf("/api/orders/%d", spy.ID), nil)
	var got contracts.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, contracts.StatusPending, got.Status)
}

func TestRouter_BulkApprove_FilterBadStatus(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/approvals/bulk-approve", map[string]interface{}{
		"filter": map[string]interface{}{"status": []string{"BOGUS"}},
		"actor":  "risk-desk-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_BulkApprove_MissingTarget(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, "POST", "/api/approvals/bulk-approve", map[string]interface{}{
		"actor": "risk-desk-1",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ListFilters(t *testing.T) {
	router, scorer := newTestRouter(t)
	stageOrder(t, router) // pending
	scorer.total = 10
	stageOrder(t, router) // staged

	rec := doJSON(t, router, "GET", "/api/orders?status=PENDING", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page contracts.OrderPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Orders, 1)

	rec = doJSON(t, router, "GET", "/api/orders?status=BOGUS", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_ListSymbolLowercase(t *testing.T) {
	router, _ := newTestRouter(t)
	stageOrder(t, router) // SPY로 저장됨

	// 소문자 조회도 저장 시 정규화와 같은 규칙으로 매칭
	rec := doJSON(t, router, "GET", "/api/orders?symbol=spy", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var page contracts.OrderPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Orders, 1)
	assert.Equal(t, "SPY", page.Orders[0].Symbol)
}
