package compliance

import (
	"fmt"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Rule names (평가 결과에 항상 이 이름으로 보고됨)
const (
	RulePositionLimit      = "position-limit"
	RuleConcentrationLimit = "concentration-limit"
	RuleRegulatorySize     = "regulatory-size-limit"
)

// Rule is one independently evaluated pass/fail check
type Rule interface {
	Name() string
	Evaluate(order *contracts.Order, snap *contracts.MarketSnapshot, limits *contracts.ComplianceLimits) contracts.RuleResult
}

// =============================================================================
// position-limit: 체결 후 보유 수량이 한도를 넘는지
// =============================================================================

type PositionLimitRule struct{}

func (PositionLimitRule) Name() string { return RulePositionLimit }

func (PositionLimitRule) Evaluate(order *contracts.Order, snap *contracts.MarketSnapshot, limits *contracts.ComplianceLimits) contracts.RuleResult {
	result := contracts.RuleResult{
		Rule:  RulePositionLimit,
		Limit: float64(limits.MaxPositionQty),
	}

	if !snap.HasPortfolioData {
		return unavailable(result, "position data missing")
	}

	projected := snap.PositionQty
	if order.Side == contracts.SideBuy {
		projected += order.Qty
	} else {
		projected -= order.Qty
	}
	if projected < 0 {
		projected = -projected // 공매도 노출도 절대값으로 한도 적용
	}

	result.Current = float64(projected)
	result.Passed = projected <= limits.MaxPositionQty
	if !result.Passed {
		result.Detail = fmt.Sprintf("projected position %d exceeds limit %d", projected, limits.MaxPositionQty)
	}
	return result
}

// =============================================================================
// concentration-limit: 체결 후 종목 비중이 한도를 넘는지
// =============================================================================

type ConcentrationLimitRule struct{}

func (ConcentrationLimitRule) Name() string { return RuleConcentrationLimit }

func (ConcentrationLimitRule) Evaluate(order *contracts.Order, snap *contracts.MarketSnapshot, limits *contracts.ComplianceLimits) contracts.RuleResult {
	result := contracts.RuleResult{
		Rule:  RuleConcentrationLimit,
		Limit: limits.MaxConcentration,
	}

	if !snap.HasPortfolioData || snap.PortfolioValue <= 0 {
		return unavailable(result, "portfolio data missing")
	}

	conc := snap.Concentration
	if order.Side == contracts.SideBuy {
		if !snap.HasPrice && order.OrderType == contracts.TypeMarket {
			return unavailable(result, "reference price missing")
		}
		conc += order.Notional(snap.Price) / snap.PortfolioValue
	}

	result.Current = conc
	result.Passed = conc <= limits.MaxConcentration
	if !result.Passed {
		result.Detail = fmt.Sprintf("projected concentration %.1f%% exceeds limit %.1f%%",
			conc*100, limits.MaxConcentration*100)
	}
	return result
}

// =============================================================================
// regulatory-size-limit: 단일 주문 명목가 한도
// =============================================================================

type RegulatorySizeRule struct{}

func (RegulatorySizeRule) Name() string { return RuleRegulatorySize }

func (RegulatorySizeRule) Evaluate(order *contracts.Order, snap *contracts.MarketSnapshot, limits *contracts.ComplianceLimits) contracts.RuleResult {
	result := contracts.RuleResult{
		Rule:  RuleRegulatorySize,
		Limit: limits.MaxNotional,
	}

	if !snap.HasPrice && order.OrderType == contracts.TypeMarket {
		return unavailable(result, "reference price missing")
	}

	notional := order.Notional(snap.Price)
	result.Current = notional
	result.Passed = notional <= limits.MaxNotional
	if !result.Passed {
		result.Detail = fmt.Sprintf("order notional %.2f exceeds regulatory limit %.2f",
			notional, limits.MaxNotional)
	}
	return result
}

// unavailable marks a rule as failed-unavailable rather than aborting
// 참조 데이터 결측은 나머지 규칙 평가를 막지 않음
func unavailable(r contracts.RuleResult, note string) contracts.RuleResult {
	r.Passed = false
	r.Unavailable = true
	r.Detail = "unavailable: " + note
	return r
}
