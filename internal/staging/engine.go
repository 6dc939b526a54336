package staging

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/risk"
	"github.com/wonny/bastion/backend/pkg/config"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// =====================================================
// Staging Engine
// 주문 스테이징/승인 상태 기계의 단일 진입점
// ⭐ SSOT: 상태 전이는 전부 이 파일을 통해서만 일어남
// =====================================================

// RiskScorer scores an order against a market snapshot (pure)
type RiskScorer interface {
	Score(order *contracts.Order, snap *contracts.MarketSnapshot) *risk.Assessment
}

// ComplianceEvaluator evaluates every rule, never short-circuiting
type ComplianceEvaluator interface {
	Evaluate(ctx context.Context, order *contracts.Order, snap *contracts.MarketSnapshot) []contracts.RuleResult
}

// Engine coordinates validation, scoring, compliance and persistence
type Engine struct {
	repo      contracts.OrderRepository
	scorer    RiskScorer
	evaluator ComplianceEvaluator
	snapshots contracts.SnapshotProvider
	clock     contracts.Clock
	policy    config.PolicyConfig
	retrier   *Retrier
	log       *logger.Logger
}

func NewEngine(
	repo contracts.OrderRepository,
	scorer RiskScorer,
	evaluator ComplianceEvaluator,
	snapshots contracts.SnapshotProvider,
	clock contracts.Clock,
	policy config.PolicyConfig,
	log *logger.Logger,
) *Engine {
	return &Engine{
		repo:      repo,
		scorer:    scorer,
		evaluator: evaluator,
		snapshots: snapshots,
		clock:     clock,
		policy:    policy,
		retrier:   NewRetrier(policy.RetryMaxAttempts, policy.RetryBackoff, log),
		log:       log,
	}
}

// =====================================================
// Stage
// =====================================================

// Stage validates, scores and persists a new order.
// 스코어링/평가 단계는 ScoringTimeout으로 제한되고, 타임아웃 시
// 아무것도 저장하지 않은 채 DependencyTimeoutError 반환
func (e *Engine) Stage(ctx context.Context, draft OrderDraft) (*contracts.Order, error) {
	if verr := validateDraft(draft); verr != nil {
		return nil, verr
	}

	now := e.clock.Now()
	order := &contracts.Order{
		Symbol:         strings.ToUpper(strings.TrimSpace(draft.Symbol)),
		Side:           draft.Side,
		Qty:            draft.Qty,
		OrderType:      draft.OrderType,
		LimitPrice:     draft.LimitPrice,
		StopPrice:      draft.StopPrice,
		Strategy:       draft.Strategy,
		StrategyParams: draft.StrategyParams.Clone(),
		CreatedBy:      draft.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.assess(ctx, order); err != nil {
		return nil, err
	}

	if order.ApprovalRequired {
		order.Status = contracts.StatusPending
	} else {
		order.Status = contracts.StatusStaged
	}

	entry := &contracts.AuditEntry{
		Kind:       contracts.TransitionCreated,
		Actor:      draft.CreatedBy,
		Timestamp:  now,
		FromStatus: "",
		ToStatus:   order.Status,
		Detail:     fmt.Sprintf("risk_score=%.1f approval_required=%t", order.RiskScore, order.ApprovalRequired),
	}

	created, err := e.repo.Create(ctx, order, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to persist staged order: %w", err)
	}

	e.log.WithFields(map[string]interface{}{
		"order_id":          created.ID,
		"symbol":            created.Symbol,
		"status":            string(created.Status),
		"risk_score":        created.RiskScore,
		"approval_required": created.ApprovalRequired,
	}).Info("Order staged")

	return created, nil
}

// assess runs the scoring/compliance phase under the policy timeout and
// writes the results onto the order. 스냅샷 실패는 결측 처리로 열화
// (스코어러가 보수적 상한을 적용), 타임아웃만 호출 실패로 승격
func (e *Engine) assess(ctx context.Context, order *contracts.Order) error {
	sctx, cancel := context.WithTimeout(ctx, e.policy.ScoringTimeout)
	defer cancel()

	snap, err := e.snapshots.Snapshot(sctx, order.Symbol)
	if err != nil {
		if sctx.Err() == context.DeadlineExceeded {
			return &contracts.DependencyTimeoutError{
				Dependency: "market snapshot",
				Timeout:    e.policy.ScoringTimeout,
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// 열화: 스냅샷 없이 진행 → 전 항목 보수적 상한
		e.log.WithError(err).WithField("symbol", order.Symbol).
			Warn("Snapshot unavailable, scoring with conservative ceilings")
		snap = nil
	}

	assessment := e.scorer.Score(order, snap)
	order.RiskScore = assessment.Total
	order.RiskFactors = assessment.Factors
	order.Recommendations = assessment.Recommendations

	order.Compliance = e.evaluator.Evaluate(sctx, order, snap)
	if sctx.Err() == context.DeadlineExceeded {
		return &contracts.DependencyTimeoutError{
			Dependency: "compliance limits",
			Timeout:    e.policy.ScoringTimeout,
		}
	}

	order.ApprovalRequired = order.RiskScore > e.policy.HighRiskThreshold ||
		order.ComplianceFailed() ||
		order.Qty > e.policy.LargeOrderQty

	return nil
}

// =====================================================
// Transitions
// =====================================================

// transitionFn inspects the freshly read order and either mutates it and
// returns the audit entry to pair with the write, or returns (nil, nil)
// for an idempotent no-op, or an error.
type transitionFn func(o *contracts.Order) (*contracts.AuditEntry, error)

// transition is the shared optimistic read-modify-write loop.
// ConflictError만 재시도, 나머지는 즉시 표면화
func (e *Engine) transition(ctx context.Context, id int64, op string, fn transitionFn) (*contracts.Order, error) {
	var out *contracts.Order

	err := e.retrier.Do(ctx, op, func(ctx context.Context) error {
		order, err := e.repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		entry, err := fn(order)
		if err != nil {
			return err
		}
		if entry == nil {
			// 멱등 no-op: 쓰기 없이 현재 상태 반환
			out = order
			return nil
		}

		updated, err := e.repo.UpdateIfVersionMatches(ctx, order, order.Version, entry)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.WithFields(map[string]interface{}{
		"order_id": id,
		"op":       op,
		"status":   string(out.Status),
	}).Info("Order transition applied")

	return out, nil
}

// Approve moves a pending order to approved.
// 동일 승인자의 재승인은 no-op, 다른 승인자의 재승인은 ConflictError
func (e *Engine) Approve(ctx context.Context, id int64, approver string) (*contracts.Order, error) {
	if strings.TrimSpace(approver) == "" {
		return nil, contracts.NewValidationError("approver", "required")
	}

	return e.transition(ctx, id, "approve", func(o *contracts.Order) (*contracts.AuditEntry, error) {
		switch o.Status {
		case contracts.StatusApproved:
			if o.ApprovedBy == approver {
				return nil, nil
			}
			return nil, &contracts.ConflictError{
				OrderID: o.ID,
				Reason:  fmt.Sprintf("already approved by %s", o.ApprovedBy),
			}

		case contracts.StatusPending:
			now := e.clock.Now()
			o.Status = contracts.StatusApproved
			o.ApprovedBy = approver
			o.ApprovedAt = &now
			o.UpdatedAt = now
			return &contracts.AuditEntry{
				OrderID:    o.ID,
				Kind:       contracts.TransitionApproved,
				Actor:      approver,
				Timestamp:  now,
				FromStatus: contracts.StatusPending,
				ToStatus:   contracts.StatusApproved,
			}, nil

		default:
			return nil, &contracts.InvalidTransitionError{
				OrderID:   o.ID,
				Current:   o.Status,
				Attempted: contracts.StatusApproved,
				Operation: "approve",
			}
		}
	})
}

// Reject moves a pending order to rejected. 사유는 필수
func (e *Engine) Reject(ctx context.Context, id int64, approver, reason string) (*contracts.Order, error) {
	var fields []contracts.FieldError
	if strings.TrimSpace(approver) == "" {
		fields = append(fields, contracts.FieldError{Field: "approver", Message: "required"})
	}
	if strings.TrimSpace(reason) == "" {
		fields = append(fields, contracts.FieldError{Field: "reason", Message: "required"})
	}
	if len(fields) > 0 {
		return nil, &contracts.ValidationError{Fields: fields}
	}

	return e.transition(ctx, id, "reject", func(o *contracts.Order) (*contracts.AuditEntry, error) {
		if o.Status != contracts.StatusPending {
			return nil, &contracts.InvalidTransitionError{
				OrderID:   o.ID,
				Current:   o.Status,
				Attempted: contracts.StatusRejected,
				Operation: "reject",
			}
		}

		now := e.clock.Now()
		o.Status = contracts.StatusRejected
		o.RejectedAt = &now
		o.RejectionReason = reason
		o.UpdatedAt = now
		return &contracts.AuditEntry{
			OrderID:    o.ID,
			Kind:       contracts.TransitionRejected,
			Actor:      approver,
			Timestamp:  now,
			FromStatus: contracts.StatusPending,
			ToStatus:   contracts.StatusRejected,
			Detail:     reason,
		}, nil
	})
}

// Cancel abandons a staged or pending order
func (e *Engine) Cancel(ctx context.Context, id int64, actor, reason string) (*contracts.Order, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, contracts.NewValidationError("actor", "required")
	}

	return e.transition(ctx, id, "cancel", func(o *contracts.Order) (*contracts.AuditEntry, error) {
		if o.Status != contracts.StatusStaged && o.Status != contracts.StatusPending {
			return nil, &contracts.InvalidTransitionError{
				OrderID:   o.ID,
				Current:   o.Status,
				Attempted: contracts.StatusCancelled,
				Operation: "cancel",
			}
		}

		now := e.clock.Now()
		from := o.Status
		o.Status = contracts.StatusCancelled
		o.CancelledAt = &now
		o.CancelReason = reason
		o.UpdatedAt = now
		return &contracts.AuditEntry{
			OrderID:    o.ID,
			Kind:       contracts.TransitionCancelled,
			Actor:      actor,
			Timestamp:  now,
			FromStatus: from,
			ToStatus:   contracts.StatusCancelled,
			Detail:     reason,
		}, nil
	})
}

// Expire moves a staged/pending order past its max age to expired.
// 아직 만료 연령에 도달하지 않은 주문은 ValidationError
func (e *Engine) Expire(ctx context.Context, id int64) (*contracts.Order, error) {
	return e.transition(ctx, id, "expire", func(o *contracts.Order) (*contracts.AuditEntry, error) {
		if o.Status == contracts.StatusExpired {
			return nil, nil // 스윕 경합: 이미 만료됨
		}
		if o.Status != contracts.StatusStaged && o.Status != contracts.StatusPending {
			return nil, &contracts.InvalidTransitionError{
				OrderID:   o.ID,
				Current:   o.Status,
				Attempted: contracts.StatusExpired,
				Operation: "expire",
			}
		}

		now := e.clock.Now()
		if age := o.Age(now); age < e.policy.MaxOrderAge {
			return nil, contracts.NewValidationError("age",
				fmt.Sprintf("order age %s has not reached max age %s", age, e.policy.MaxOrderAge))
		}

		from := o.Status
		o.Status = contracts.StatusExpired
		o.ExpiredAt = &now
		o.UpdatedAt = now
		return &contracts.AuditEntry{
			OrderID:    o.ID,
			Kind:       contracts.TransitionExpired,
			Actor:      "system",
			Timestamp:  now,
			FromStatus: from,
			ToStatus:   contracts.StatusExpired,
			Detail:     fmt.Sprintf("max_order_age=%s", e.policy.MaxOrderAge),
		}, nil
	})
}

// Update applies pre-approval changes and re-runs scoring/compliance.
// staged↔pending 사이에서만 상태가 재판정됨
func (e *Engine) Update(ctx context.Context, id int64, req UpdateRequest) (*contracts.Order, error) {
	if req.Empty() {
		return nil, contracts.NewValidationError("update", "no fields to change")
	}

	return e.transition(ctx, id, "update", func(o *contracts.Order) (*contracts.AuditEntry, error) {
		if o.Status != contracts.StatusStaged && o.Status != contracts.StatusPending {
			return nil, &contracts.InvalidTransitionError{
				OrderID:   o.ID,
				Current:   o.Status,
				Attempted: o.Status,
				Operation: "update",
			}
		}

		if req.Qty != nil {
			o.Qty = *req.Qty
		}
		if req.OrderType != nil {
			o.OrderType = *req.OrderType
			// 새 유형이 요구하지 않는 가격 필드는 제거
			if !o.OrderType.RequiresLimitPrice() {
				o.LimitPrice = nil
			}
			if !o.OrderType.RequiresStopPrice() {
				o.StopPrice = nil
			}
		}
		if req.LimitPrice != nil {
			o.LimitPrice = req.LimitPrice
		}
		if req.StopPrice != nil {
			o.StopPrice = req.StopPrice
		}
		if req.Strategy != nil {
			o.Strategy = *req.Strategy
		}
		if req.StrategyParams != nil {
			o.StrategyParams = req.StrategyParams.Clone()
		}

		if verr := validateOrder(o); verr != nil {
			return nil, verr
		}

		if err := e.assess(ctx, o); err != nil {
			return nil, err
		}

		from := o.Status
		if o.ApprovalRequired {
			o.Status = contracts.StatusPending
		} else {
			o.Status = contracts.StatusStaged
		}

		now := e.clock.Now()
		o.UpdatedAt = now
		return &contracts.AuditEntry{
			OrderID:    o.ID,
			Kind:       contracts.TransitionUpdated,
			Actor:      o.CreatedBy,
			Timestamp:  now,
			FromStatus: from,
			ToStatus:   o.Status,
			Detail:     fmt.Sprintf("risk_score=%.1f approval_required=%t", o.RiskScore, o.ApprovalRequired),
		}, nil
	})
}

// MarkSubmitted records hand-off to the execution venue.
// staged(승인 불요) 또는 approved에서만 가능
func (e *Engine) MarkSubmitted(ctx context.Context, id int64, actor string) (*contracts.Order, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, contracts.NewValidationError("actor", "required")
	}

	return e.transition(ctx, id, "mark_submitted", func(o *contracts.Order) (*contracts.AuditEntry, error) {
		if o.Status != contracts.StatusStaged && o.Status != contracts.StatusApproved {
			return nil, &contracts.InvalidTransitionError{
				OrderID:   o.ID,
				Current:   o.Status,
				Attempted: contracts.StatusSubmitted,
				Operation: "mark_submitted",
			}
		}

		now := e.clock.Now()
		from := o.Status
		o.Status = contracts.StatusSubmitted
		o.SubmittedAt = &now
		o.UpdatedAt = now
		return &contracts.AuditEntry{
			OrderID:    o.ID,
			Kind:       contracts.TransitionSubmitted,
			Actor:      actor,
			Timestamp:  now,
			FromStatus: from,
			ToStatus:   contracts.StatusSubmitted,
		}, nil
	})
}

// MarkExecuted records fill confirmation from the venue
func (e *Engine) MarkExecuted(ctx context.Context, id int64, actor string) (*contracts.Order, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, contracts.NewValidationError("actor", "required")
	}

	return e.transition(ctx, id, "mark_executed", func(o *contracts.Order) (*contracts.AuditEntry, error) {
		if o.Status != contracts.StatusSubmitted {
			return nil, &contracts.InvalidTransitionError{
				OrderID:   o.ID,
				Current:   o.Status,
				Attempted: contracts.StatusExecuted,
				Operation: "mark_executed",
			}
		}

		now := e.clock.Now()
		o.Status = contracts.StatusExecuted
		o.ExecutedAt = &now
		o.UpdatedAt = now
		return &contracts.AuditEntry{
			OrderID:    o.ID,
			Kind:       contracts.TransitionExecuted,
			Actor:      actor,
			Timestamp:  now,
			FromStatus: contracts.StatusSubmitted,
			ToStatus:   contracts.StatusExecuted,
		}, nil
	})
}

// =====================================================
// Reads
// =====================================================

func (e *Engine) Get(ctx context.Context, id int64) (*contracts.Order, error) {
	return e.repo.GetByID(ctx, id)
}

func (e *Engine) List(ctx context.Context, filter contracts.OrderFilter) (*contracts.OrderPage, error) {
	return e.repo.List(ctx, filter)
}

// Policy exposes the effective policy (읽기 전용 사본)
func (e *Engine) Policy() config.PolicyConfig {
	return e.policy
}
