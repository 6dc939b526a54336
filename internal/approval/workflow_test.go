package approval

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/orders"
	"github.com/wonny/bastion/backend/internal/risk"
	"github.com/wonny/bastion/backend/internal/staging"
	"github.com/wonny/bastion/backend/pkg/config"
	"github.com/wonny/bastion/backend/pkg/logger"
)

type fixedScorer struct{ total float64 }

func (s *fixedScorer) Score(order *contracts.Order, snap *contracts.MarketSnapshot) *risk.Assessment {
	return &risk.Assessment{
		Total:   s.total,
		Factors: []contracts.RiskFactor{{Name: "position_size", Score: s.total, Weight: 1.0}},
	}
}

type passEvaluator struct{}

func (passEvaluator) Evaluate(ctx context.Context, order *contracts.Order, snap *contracts.MarketSnapshot) []contracts.RuleResult {
	return []contracts.RuleResult{{Rule: "position-limit", Passed: true}}
}

type okSnapshots struct{}

func (okSnapshots) Snapshot(ctx context.Context, symbol string) (*contracts.MarketSnapshot, error) {
	return &contracts.MarketSnapshot{
		Symbol: symbol,
		Price:  100, HasPrice: true,
		Volatility: 0.2, HasVolatility: true,
		MarketTrend: 0.5, HasTrend: true,
		PortfolioValue: 1_000_000, HasPortfolioData: true,
	}, nil
}

type fixture struct {
	workflow *Workflow
	engine   *staging.Engine
	scorer   *fixedScorer
	clock    *contracts.FixedClock
}

func newFixture(t *testing.T) *fixture {
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

	f := &fixture{
		scorer: &fixedScorer{total: 80},
		clock:  &contracts.FixedClock{T: time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)},
	}
	log := logger.NewWriter(io.Discard)
	f.engine = staging.NewEngine(orders.NewMemory(), f.scorer, passEvaluator{}, okSnapshots{},
		f.clock, policy, log)
	f.workflow = NewWorkflow(f.engine, 4, log)
	return f
}

func (f *fixture) stage(t *testing.T, score float64) *contracts.Order {
	return f.stageSymbol(t, score, "SPY")
}

func (f *fixture) stageSymbol(t *testing.T, score float64, symbol string) *contracts.Order {
	t.Helper()
	f.scorer.total = score
	order, err := f.engine.Stage(context.Background(), staging.OrderDraft{
		Symbol:    symbol,
		Side:      contracts.SideBuy,
		Qty:       100,
		OrderType: contracts.TypeMarket,
		CreatedBy: "trader-1",
	})
	require.NoError(t, err)
	return order
}

func TestWorkflow_BulkApprove(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.stage(t, 80) // pending
	b := f.stage(t, 80) // pending
	c := f.stage(t, 10) // staged — 승인 불가

	results := f.workflow.BulkApprove(ctx, []int64{a.ID, b.ID, c.ID, 9999}, "risk-desk-1")
	require.Len(t, results, 4)

	assert.True(t, results[0].OK)
	assert.True(t, results[1].OK)

	assert.False(t, results[2].OK)
	assert.Equal(t, "invalid_transition", results[2].Kind)

	assert.False(t, results[3].OK)
	assert.Equal(t, "not_found", results[3].Kind)

	got, err := f.engine.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusApproved, got.Status)
}

func TestWorkflow_BulkReject(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 5; i++ {
		ids = append(ids, f.stage(t, 80).ID)
	}

	// 하나는 미리 승인해서 거부가 실패하도록
	_, err := f.engine.Approve(ctx, ids[4], "risk-desk-1")
	require.NoError(t, err)

	results := f.workflow.BulkReject(ctx, ids, "risk-desk-1", "portfolio freeze")

	okCount := 0
	for _, r := range results[:4] {
		if r.OK {
			okCount++
		}
	}
	assert.Equal(t, 4, okCount)
	assert.False(t, results[4].OK)
	assert.Equal(t, "invalid_transition", results[4].Kind)
}

func TestWorkflow_BulkReject_BlankReason(t *testing.T) {
	f := newFixture(t)

	a := f.stage(t, 80)
	results := f.workflow.BulkReject(context.Background(), []int64{a.ID}, "risk-desk-1", "")

	require.Len(t, results, 1)
	assert.False(t, results[0].OK)
	assert.Equal(t, "validation", results[0].Kind)

	got, err := f.engine.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusPending, got.Status, "failed reject must not change the order")
}

func TestWorkflow_BulkApproveMatching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tslaA := f.stageSymbol(t, 80, "TSLA") // pending, 매칭
	tslaB := f.stageSymbol(t, 80, "TSLA") // pending, 매칭
	spy := f.stageSymbol(t, 80, "SPY")    // pending, 심볼 불일치
	staged := f.stageSymbol(t, 10, "TSLA") // staged, 상태 불일치

	results, err := f.workflow.BulkApproveMatching(ctx, contracts.OrderFilter{
		Status: []contracts.OrderStatus{contracts.StatusPending},
		Symbol: "TSLA",
	}, "risk-desk-1")
	require.NoError(t, err)
	require.Len(t, results, 2, "only pending TSLA orders are targeted")

	for _, r := range results {
		assert.True(t, r.OK)
	}

	for id, want := range map[int64]contracts.OrderStatus{
		tslaA.ID:  contracts.StatusApproved,
		tslaB.ID:  contracts.StatusApproved,
		spy.ID:    contracts.StatusPending,
		staged.ID: contracts.StatusStaged,
	} {
		got, err := f.engine.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got.Status, "order %d", id)
	}
}

func TestWorkflow_BulkRejectMatching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.stage(t, 80)
	b := f.stage(t, 80)
	f.stage(t, 10) // staged — 매칭 제외

	results, err := f.workflow.BulkRejectMatching(ctx, contracts.OrderFilter{
		Status: []contracts.OrderStatus{contracts.StatusPending},
	}, "risk-desk-1", "portfolio freeze")
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, id := range []int64{a.ID, b.ID} {
		got, err := f.engine.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, contracts.StatusRejected, got.Status)
		assert.Equal(t, "portfolio freeze", got.RejectionReason)
	}
}

func TestWorkflow_BulkApproveMatching_EmptyMatch(t *testing.T) {
	f := newFixture(t)

	f.stage(t, 10) // staged만 존재

	results, err := f.workflow.BulkApproveMatching(context.Background(), contracts.OrderFilter{
		Status: []contracts.OrderStatus{contracts.StatusPending},
	}, "risk-desk-1")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestWorkflow_Queue_Ordering(t *testing.T) {
	f := newFixture(t)

	low := f.stage(t, 76)
	f.clock.Advance(time.Minute)
	highOld := f.stage(t, 90)
	f.clock.Advance(time.Minute)
	highNew := f.stage(t, 90)
	f.stage(t, 10) // staged — 큐에 없음

	queue, err := f.workflow.Queue(context.Background())
	require.NoError(t, err)
	require.Len(t, queue, 3)

	// 리스크 내림차순, 동점은 오래된 것부터
	assert.Equal(t, highOld.ID, queue[0].ID)
	assert.Equal(t, highNew.ID, queue[1].ID)
	assert.Equal(t, low.ID, queue[2].ID)
}

func TestWorkflow_ExpireStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.stage(t, 80) // pending
	f.stage(t, 10) // staged
	approvedID := f.stage(t, 80).ID
	_, err := f.engine.Approve(ctx, approvedID, "risk-desk-1")
	require.NoError(t, err)

	f.clock.Advance(25 * time.Hour)
	fresh := f.stage(t, 80) // 연령 미달

	report, err := f.workflow.ExpireStale(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, report.Scanned, "approved orders are not scanned")
	assert.Equal(t, 2, report.Expired)
	assert.Equal(t, 1, report.Skipped, "fresh order is skipped")
	assert.Equal(t, 0, report.Failed)

	got, err := f.engine.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StatusPending, got.Status)

	// 멱등성: 재실행은 아무것도 만료하지 않음
	report, err = f.workflow.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
}
