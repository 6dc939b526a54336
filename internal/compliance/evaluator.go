package compliance

import (
	"context"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Evaluator runs the ordered rule set against an order
// ⭐ SSOT: 컴플라이언스 판정은 여기서만
// 절대 중간에 끊지 않음: 하나가 실패해도 전체 규칙을 끝까지 평가해서
// 호출자가 완전한 그림을 보게 함
type Evaluator struct {
	rules  []Rule
	limits contracts.LimitsProvider
}

// NewEvaluator creates an evaluator with an explicit rule order
func NewEvaluator(limits contracts.LimitsProvider, rules ...Rule) *Evaluator {
	return &Evaluator{
		rules:  rules,
		limits: limits,
	}
}

// Default creates the standard three-rule evaluator
func Default(limits contracts.LimitsProvider) *Evaluator {
	return NewEvaluator(limits,
		PositionLimitRule{},
		ConcentrationLimitRule{},
		RegulatorySizeRule{},
	)
}

// Evaluate runs every rule and reports every result.
// 참조 데이터 조회 실패는 규칙별 unavailable 실패로 보고 (평가 중단 금지)
func (e *Evaluator) Evaluate(ctx context.Context, order *contracts.Order, snap *contracts.MarketSnapshot) []contracts.RuleResult {
	if snap == nil {
		snap = &contracts.MarketSnapshot{Symbol: order.Symbol}
	}

	limits, err := e.limits.Limits(ctx, order.Symbol)
	if err != nil || limits == nil {
		// 한도 데이터 없이는 어떤 규칙도 판정 불가, 전부 unavailable로 보고
		results := make([]contracts.RuleResult, 0, len(e.rules))
		for _, rule := range e.rules {
			results = append(results, unavailable(
				contracts.RuleResult{Rule: rule.Name()},
				"reference data lookup failed",
			))
		}
		return results
	}

	results := make([]contracts.RuleResult, 0, len(e.rules))
	for _, rule := range e.rules {
		results = append(results, rule.Evaluate(order, snap, limits))
	}
	return results
}

// RuleNames returns the configured rule order
func (e *Evaluator) RuleNames() []string {
	names := make([]string, len(e.rules))
	for i, r := range e.rules {
		names[i] = r.Name()
	}
	return names
}
