package risk

import (
	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/pkg/config"
)

// Factor names, in the fixed combination order
// 합산은 이 순서로만 수행 (순서 비의존 가중합이지만 출력 순서는 고정)
const (
	FactorPositionSize  = "position_size"
	FactorVolatility    = "volatility"
	FactorConcentration = "concentration"
	FactorMarketRegime  = "market_regime"
	FactorStrategy      = "strategy"
)

// factorOrder fixes the reporting order of sub-scores
var factorOrder = []string{
	FactorPositionSize,
	FactorVolatility,
	FactorConcentration,
	FactorMarketRegime,
	FactorStrategy,
}

// Config holds scoring policy
// ⭐ SSOT: 가중치/상한은 전부 주입, 엔진 계약은 합=1과 결정론만 요구
type Config struct {
	Weights            map[string]float64 // factor name → weight, 합 = 1.0
	MissingDataCeiling float64            // 결측 시 보수적 상한 점수

	// StrategyRisk maps strategy tags to a base risk score.
	// 미등록 전략은 UnknownStrategyRisk 사용
	StrategyRisk        map[string]float64
	UnknownStrategyRisk float64

	// Scale anchors (데이터 → [0,100] 매핑 기준점)
	FullRiskNotionalShare float64 // 주문 명목가/포트폴리오 가치 비율이 이 값이면 100점
	FullRiskVolatility    float64 // 연환산 변동성이 이 값이면 100점
	FullRiskConcentration float64 // 종목 비중이 이 값이면 100점
}

// FromPolicy builds a scorer config from the process policy
func FromPolicy(p config.PolicyConfig) Config {
	return Config{
		Weights:            p.RiskWeights(),
		MissingDataCeiling: p.MissingDataCeiling,

		StrategyRisk:        DefaultStrategyRisk(),
		UnknownStrategyRisk: 50,

		FullRiskNotionalShare: 0.25,
		FullRiskVolatility:    0.80,
		FullRiskConcentration: 0.40,
	}
}

// DefaultStrategyRisk is the built-in strategy risk table
// 운영에서는 설정으로 교체됨
func DefaultStrategyRisk() map[string]float64 {
	return map[string]float64{
		"covered_call":  20,
		"cash_secured":  25,
		"iron_condor":   35,
		"vertical":      40,
		"momentum":      60,
		"mean_revert":   55,
		"naked_option":  85,
		"leveraged_etf": 75,
	}
}

// Assessment is the scoring result: total plus named sub-scores
type Assessment struct {
	Total           float64                `json:"total"` // [0,100]
	Factors         []contracts.RiskFactor `json:"factors"`
	Recommendations []string               `json:"recommendations,omitempty"`
}

// Estimated returns the names of sub-scores that were estimated rather
// than measured (데이터 결측으로 상한 처리된 항목)
func (a *Assessment) Estimated() []string {
	var names []string
	for _, f := range a.Factors {
		if f.Estimated {
			names = append(names, f.Name)
		}
	}
	return names
}
