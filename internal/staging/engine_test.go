package staging

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/orders"
	"github.com/wonny/bastion/backend/internal/risk"
	"github.com/wonny/bastion/backend/pkg/config"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// =====================================================
// Test doubles
// =====================================================

type stubScorer struct {
	mu       sync.Mutex
	total    float64
	lastSnap *contracts.MarketSnapshot
}

func (s *stubScorer) Score(order *contracts.Order, snap *contracts.MarketSnapshot) *risk.Assessment {
	s.mu.Lock()
	s.lastSnap = snap
	s.mu.Unlock()
	return &risk.Assessment{
		Total: s.total,
		Factors: []contracts.RiskFactor{
			{Name: "position_size", Score: s.total, Weight: 1.0},
		},
	}
}

type stubEvaluator struct {
	results []contracts.RuleResult
}

func (s *stubEvaluator) Evaluate(ctx context.Context, order *contracts.Order, snap *contracts.MarketSnapshot) []contracts.RuleResult {
	if s.results == nil {
		return []contracts.RuleResult{{Rule: "position-limit", Passed: true}}
	}
	return s.results
}

type stubSnapshots struct {
	snap    *contracts.MarketSnapshot
	err     error
	blocked bool // block until ctx cancellation
}

func (s *stubSnapshots) Snapshot(ctx context.Context, symbol string) (*contracts.MarketSnapshot, error) {
	if s.blocked {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.snap != nil {
		return s.snap, nil
	}
	return &contracts.MarketSnapshot{
		Symbol: symbol,
		Price:  100, HasPrice: true,
		Volatility: 0.2, HasVolatility: true,
		MarketTrend: 0.5, HasTrend: true,
		PortfolioValue: 1_000_000, HasPortfolioData: true,
	}, nil
}

type testEnv struct {
	engine    *Engine
	repo      *orders.Memory
	clock     *contracts.FixedClock
	scorer    *stubScorer
	evaluator *stubEvaluator
	snapshots *stubSnapshots
}

func testPolicy() config.PolicyConfig {
	return config.PolicyConfig{
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
}

func newTestEnv(t *testing.T, policy config.PolicyConfig) *testEnv {
	t.Helper()

	env := &testEnv{
		repo:      orders.NewMemory(),
		clock:     &contracts.FixedClock{T: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)},
		scorer:    &stubScorer{total: 20},
		evaluator: &stubEvaluator{},
		snapshots: &stubSnapshots{},
	}
	env.engine = NewEngine(env.repo, env.scorer, env.evaluator, env.snapshots,
		env.clock, policy, logger.NewWriter(io.Discard))
	return env
}

func marketBuy(qty int64) OrderDraft {
	return OrderDraft{
		Symbol:    "SPY",
		Side:      contracts.SideBuy,
		Qty:       qty,
		OrderType: contracts.TypeMarket,
		CreatedBy: "trader-1",
	}
}

// =====================================================
// Stage
// =====================================================

func TestEngine_Stage_HighRiskRequiresApproval(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 80

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusPending, order.Status)
	assert.True(t, order.ApprovalRequired)
	assert.Equal(t, 80.0, order.RiskScore)
	assert.Equal(t, int64(1), order.Version)

	entries, err := env.repo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, contracts.TransitionCreated, entries[0].Kind)
	assert.Equal(t, contracts.StatusPending, entries[0].ToStatus)
}

func TestEngine_Stage_LowRiskGoesStaged(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 12

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusStaged, order.Status)
	assert.False(t, order.ApprovalRequired)
}

func TestEngine_Stage_LargeQtyRequiresApproval(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 10 // 리스크는 낮아도 수량이 임계 초과

	order, err := env.engine.Stage(context.Background(), marketBuy(1500))
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusPending, order.Status)
	assert.True(t, order.ApprovalRequired)
}

func TestEngine_Stage_ComplianceFailRequiresApproval(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 10
	env.evaluator.results = []contracts.RuleResult{
		{Rule: "position-limit", Passed: true},
		{Rule: "concentration-limit", Passed: false, Detail: "would exceed 25% of portfolio"},
	}

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusPending, order.Status)
	assert.True(t, order.ApprovalRequired)
	assert.Len(t, order.Compliance, 2)
}

func TestEngine_Stage_ValidationCollectsEveryViolation(t *testing.T) {
	env := newTestEnv(t, testPolicy())

	price := 101.5
	_, err := env.engine.Stage(context.Background(), OrderDraft{
		Symbol:     "",
		Side:       "HOLD",
		Qty:        0,
		OrderType:  contracts.TypeMarket,
		LimitPrice: &price, // MARKET인데 지정가 존재
		CreatedBy:  "trader-1",
	})

	var verr *contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 4)

	// 아무것도 저장되지 않아야 함
	page, err := env.repo.List(context.Background(), contracts.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Orders)
}

func TestEngine_Stage_SnapshotTimeout(t *testing.T) {
	policy := testPolicy()
	policy.ScoringTimeout = 20 * time.Millisecond

	env := newTestEnv(t, policy)
	env.snapshots.blocked = true

	_, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.Error(t, err)
	assert.True(t, contracts.IsDependencyTimeout(err), "got %T: %v", err, err)

	page, err := env.repo.List(context.Background(), contracts.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, page.Orders, "timeout must not leave a partial order behind")
}

func TestEngine_Stage_SnapshotErrorDegrades(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.snapshots.err = errors.New("connection refused")

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)

	assert.NotZero(t, order.ID)
	assert.Nil(t, env.scorer.lastSnap, "scorer should see a nil snapshot on provider failure")
}

// =====================================================
// Approve / Reject
// =====================================================

func stagePending(t *testing.T, env *testEnv) *contracts.Order {
	t.Helper()
	env.scorer.total = 80
	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)
	require.Equal(t, contracts.StatusPending, order.Status)
	return order
}

func TestEngine_Approve(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	approved, err := env.engine.Approve(context.Background(), order.ID, "risk-desk-1")
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusApproved, approved.Status)
	assert.Equal(t, "risk-desk-1", approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	assert.Equal(t, int64(2), approved.Version)

	entries, err := env.repo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, contracts.TransitionApproved, entries[1].Kind)
	assert.Equal(t, "risk-desk-1", entries[1].Actor)
}

func TestEngine_Approve_IdempotentSameApprover(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	first, err := env.engine.Approve(context.Background(), order.ID, "risk-desk-1")
	require.NoError(t, err)

	again, err := env.engine.Approve(context.Background(), order.ID, "risk-desk-1")
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version, "re-approval must not bump the version")

	entries, err := env.repo.ListByOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no-op must not append an audit entry")
}

func TestEngine_Approve_DifferentApproverConflicts(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	_, err := env.engine.Approve(context.Background(), order.ID, "risk-desk-1")
	require.NoError(t, err)

	_, err = env.engine.Approve(context.Background(), order.ID, "risk-desk-2")
	assert.True(t, contracts.IsConflict(err), "got %T: %v", err, err)
}

func TestEngine_Approve_OnStagedIsInvalid(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 10

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)
	require.Equal(t, contracts.StatusStaged, order.Status)

	_, err = env.engine.Approve(context.Background(), order.ID, "risk-desk-1")

	var terr *contracts.InvalidTransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, contracts.StatusStaged, terr.Current)
	assert.Equal(t, contracts.StatusApproved, terr.Attempted)
}

func TestEngine_Approve_NotFound(t *testing.T) {
	env := newTestEnv(t, testPolicy())

	_, err := env.engine.Approve(context.Background(), 9999, "risk-desk-1")
	assert.True(t, contracts.IsNotFound(err))
}

func TestEngine_Reject(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	rejected, err := env.engine.Reject(context.Background(), order.ID, "risk-desk-1", "concentration too high")
	require.NoError(t, err)

	assert.Equal(t, contracts.StatusRejected, rejected.Status)
	assert.Equal(t, "concentration too high", rejected.RejectionReason)
	require.NotNil(t, rejected.RejectedAt)
}

func TestEngine_Reject_BlankReason(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	_, err := env.engine.Reject(context.Background(), order.ID, "risk-desk-1", "  ")

	var verr *contracts.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 1)
	assert.Equal(t, "reason", verr.Fields[0].Field)
}

// =====================================================
// Cancel / Expire
// =====================================================

func TestEngine_Cancel(t *testing.T) {
	env := newTestEnv(t, testPolicy())

	for _, total := range []float64{10, 80} { // staged와 pending 둘 다
		env.scorer.total = total
		order, err := env.engine.Stage(context.Background(), marketBuy(100))
		require.NoError(t, err)

		cancelled, err := env.engine.Cancel(context.Background(), order.ID, "trader-1", "changed my mind")
		require.NoError(t, err)
		assert.Equal(t, contracts.StatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancelledAt)
	}
}

func TestEngine_Cancel_AfterApprovalIsInvalid(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	_, err := env.engine.Approve(context.Background(), order.ID, "risk-desk-1")
	require.NoError(t, err)

	_, err = env.engine.Cancel(context.Background(), order.ID, "trader-1", "")
	assert.True(t, contracts.IsInvalidTransition(err))
}

func TestEngine_Expire(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	// 아직 연령 미달
	_, err := env.engine.Expire(context.Background(), order.ID)
	assert.True(t, contracts.IsValidation(err), "premature expiry must fail validation")

	env.clock.Advance(25 * time.Hour)

	expired, err := env.engine.Expire(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExpired, expired.Status)
	require.NotNil(t, expired.ExpiredAt)

	// 스윕 경합 멱등성: 재만료는 no-op
	again, err := env.engine.Expire(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, expired.Version, again.Version)
}

// =====================================================
// Update
// =====================================================

func TestEngine_Update_Rescores(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 10

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)
	require.Equal(t, contracts.StatusStaged, order.Status)

	// 수량 변경으로 대량 주문 임계 초과 → pending으로 재판정
	qty := int64(5000)
	updated, err := env.engine.Update(context.Background(), order.ID, UpdateRequest{Qty: &qty})
	require.NoError(t, err)

	assert.Equal(t, int64(5000), updated.Qty)
	assert.Equal(t, contracts.StatusPending, updated.Status)
	assert.True(t, updated.ApprovalRequired)
}

func TestEngine_Update_AfterApprovalIsInvalid(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	_, err := env.engine.Approve(context.Background(), order.ID, "risk-desk-1")
	require.NoError(t, err)

	qty := int64(50)
	_, err = env.engine.Update(context.Background(), order.ID, UpdateRequest{Qty: &qty})
	assert.True(t, contracts.IsInvalidTransition(err))
}

func TestEngine_Update_InvalidResultRejected(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 10

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)

	qty := int64(-5)
	_, err = env.engine.Update(context.Background(), order.ID, UpdateRequest{Qty: &qty})
	assert.True(t, contracts.IsValidation(err))

	// 원본은 그대로
	got, err := env.engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), got.Qty)
}

// =====================================================
// Submit / Execute
// =====================================================

func TestEngine_SubmitExecuteLifecycle(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 10

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)

	submitted, err := env.engine.MarkSubmitted(context.Background(), order.ID, "router")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusSubmitted, submitted.Status)

	executed, err := env.engine.MarkExecuted(context.Background(), order.ID, "router")
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusExecuted, executed.Status)
	require.NotNil(t, executed.ExecutedAt)

	// 종료 상태에서 추가 전이 불가
	_, err = env.engine.MarkSubmitted(context.Background(), order.ID, "router")
	assert.True(t, contracts.IsInvalidTransition(err))
}

func TestEngine_MarkExecuted_RequiresSubmitted(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	env.scorer.total = 10

	order, err := env.engine.Stage(context.Background(), marketBuy(100))
	require.NoError(t, err)

	_, err = env.engine.MarkExecuted(context.Background(), order.ID, "router")
	assert.True(t, contracts.IsInvalidTransition(err))
}

// =====================================================
// Concurrency
// =====================================================

func TestEngine_ConcurrentApprove_SingleWinner(t *testing.T) {
	env := newTestEnv(t, testPolicy())
	order := stagePending(t, env)

	const n = 8
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			approver := "approver-" + string(rune('a'+i))
			_, errs[i] = env.engine.Approve(context.Background(), order.ID, approver)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.True(t, contracts.IsConflict(err), "loser must see ConflictError, got %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one approver must win")

	got, err := env.engine.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusApproved, got.Status)
	assert.Equal(t, int64(2), got.Version)
}
