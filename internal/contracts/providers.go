package contracts

import "context"

// MarketSnapshot is the market/account view supplied to scoring and
// compliance. Has* 플래그가 false인 필드는 결측 (보수적 처리 대상)
type MarketSnapshot struct {
	Symbol string `json:"symbol"`

	// Market data
	Price         float64 `json:"price"`
	HasPrice      bool    `json:"has_price"`
	Volatility    float64 `json:"volatility"` // 연환산 변동성 (0.35 = 35%)
	HasVolatility bool    `json:"has_volatility"`
	MarketTrend   float64 `json:"market_trend"` // [-1,1], -1 = 약세 국면
	HasTrend      bool    `json:"has_trend"`

	// Account/portfolio state for this symbol
	PositionQty      int64   `json:"position_qty"`
	Concentration    float64 `json:"concentration"` // 포트폴리오 내 비중 [0,1]
	PortfolioValue   float64 `json:"portfolio_value"`
	HasPortfolioData bool    `json:"has_portfolio_data"`
}

// SnapshotProvider supplies market/account snapshots per symbol
// 네트워크 의존 (호출부는 타임아웃과 열화를 책임짐)
type SnapshotProvider interface {
	Snapshot(ctx context.Context, symbol string) (*MarketSnapshot, error)
}

// ComplianceLimits is the reference data consumed by compliance rules
type ComplianceLimits struct {
	Symbol           string  `json:"symbol"` // "" = 전역 기본값
	MaxPositionQty   int64   `json:"max_position_qty"`
	MaxConcentration float64 `json:"max_concentration"` // [0,1]
	MaxNotional      float64 `json:"max_notional"`
}

// LimitsProvider supplies compliance limits per symbol
type LimitsProvider interface {
	Limits(ctx context.Context, symbol string) (*ComplianceLimits, error)
}
