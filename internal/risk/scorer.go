package risk

import (
	"fmt"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// =============================================================================
// Scorer - 순수 계산기
// =============================================================================

// Scorer computes the composite risk score for an order
// ⭐ SSOT: 리스크 점수는 여기서만 산출. 순수 함수: 시계/난수 의존 금지
// (동일 입력 → 비트 동일 출력, 재채점이 안전해야 함)
type Scorer struct {
	cfg Config
}

// NewScorer creates a new risk scorer
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the assessment for an order against a market snapshot.
// 결측 데이터는 에러가 아니라 보수적 상한 + estimated 플래그로 처리
func (s *Scorer) Score(order *contracts.Order, snap *contracts.MarketSnapshot) *Assessment {
	if snap == nil {
		snap = &contracts.MarketSnapshot{Symbol: order.Symbol}
	}

	scores := map[string]subScore{
		FactorPositionSize:  s.positionSizeRisk(order, snap),
		FactorVolatility:    s.volatilityRisk(snap),
		FactorConcentration: s.concentrationRisk(order, snap),
		FactorMarketRegime:  s.marketRegimeRisk(snap),
		FactorStrategy:      s.strategyRisk(order),
	}

	assessment := &Assessment{
		Factors: make([]contracts.RiskFactor, 0, len(factorOrder)),
	}

	// Weighted sum in fixed factor order. 가중치 키 순회가 아니라 고정
	// 순서를 돌기 때문에 결과가 순서 비의존으로 재현됨
	var total float64
	for _, name := range factorOrder {
		sc := scores[name]
		weight := s.cfg.Weights[name]
		total += sc.value * weight

		assessment.Factors = append(assessment.Factors, contracts.RiskFactor{
			Name:      name,
			Score:     sc.value,
			Weight:    weight,
			Estimated: sc.estimated,
		})
	}

	assessment.Total = clamp(total)
	assessment.Recommendations = s.recommend(assessment)

	return assessment
}

type subScore struct {
	value     float64
	estimated bool
}

// measured builds a clamped measured sub-score
func measured(v float64) subScore {
	return subScore{value: clamp(v)}
}

// ceiling builds the conservative estimate used when data is missing
func (s *Scorer) ceiling() subScore {
	return subScore{value: clamp(s.cfg.MissingDataCeiling), estimated: true}
}

// =============================================================================
// Sub-scores (각각 [0,100] 독립 산출)
// =============================================================================

// positionSizeRisk scales the order's notional share of the portfolio
func (s *Scorer) positionSizeRisk(order *contracts.Order, snap *contracts.MarketSnapshot) subScore {
	needsRefPrice := order.OrderType == contracts.TypeMarket
	if needsRefPrice && !snap.HasPrice {
		return s.ceiling()
	}
	if !snap.HasPortfolioData || snap.PortfolioValue <= 0 {
		return s.ceiling()
	}

	notional := order.Notional(snap.Price)
	share := notional / snap.PortfolioValue
	return measured(share / s.cfg.FullRiskNotionalShare * 100)
}

// volatilityRisk scales annualized volatility
func (s *Scorer) volatilityRisk(snap *contracts.MarketSnapshot) subScore {
	if !snap.HasVolatility {
		return s.ceiling()
	}
	return measured(snap.Volatility / s.cfg.FullRiskVolatility * 100)
}

// concentrationRisk scales the post-trade symbol weight
func (s *Scorer) concentrationRisk(order *contracts.Order, snap *contracts.MarketSnapshot) subScore {
	if !snap.HasPortfolioData || snap.PortfolioValue <= 0 {
		return s.ceiling()
	}

	conc := snap.Concentration
	if order.Side == contracts.SideBuy && snap.HasPrice {
		// 매수만 비중을 키움
		conc += order.Notional(snap.Price) / snap.PortfolioValue
	}
	return measured(conc / s.cfg.FullRiskConcentration * 100)
}

// marketRegimeRisk maps the trend indicator [-1,1] to [100,0]
func (s *Scorer) marketRegimeRisk(snap *contracts.MarketSnapshot) subScore {
	if !snap.HasTrend {
		return s.ceiling()
	}
	return measured((1 - snap.MarketTrend) / 2 * 100)
}

// strategyRisk looks up the strategy tag in the configured table
func (s *Scorer) strategyRisk(order *contracts.Order) subScore {
	if order.Strategy == "" {
		return measured(s.cfg.UnknownStrategyRisk)
	}
	if v, ok := s.cfg.StrategyRisk[order.Strategy]; ok {
		return measured(v)
	}
	return measured(s.cfg.UnknownStrategyRisk)
}

// =============================================================================
// Recommendations
// =============================================================================

// recommend derives free-text guidance from the sub-scores (결정론적)
func (s *Scorer) recommend(a *Assessment) []string {
	var recs []string

	for _, f := range a.Factors {
		if f.Estimated {
			recs = append(recs, fmt.Sprintf("%s: market data unavailable, scored at conservative ceiling", f.Name))
			continue
		}
		if f.Score < 70 {
			continue
		}

		switch f.Name {
		case FactorPositionSize:
			recs = append(recs, "position size is large relative to portfolio, consider splitting the order")
		case FactorVolatility:
			recs = append(recs, "underlying volatility is elevated, consider a limit order")
		case FactorConcentration:
			recs = append(recs, "symbol concentration after this trade is high, consider diversifying")
		case FactorMarketRegime:
			recs = append(recs, "market regime is unfavorable for new exposure")
		case FactorStrategy:
			recs = append(recs, "strategy carries high base risk, supervisor review recommended")
		}
	}

	return recs
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
