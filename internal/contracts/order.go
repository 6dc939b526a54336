package contracts

import "time"

// Order is the central staged-order record shared across layers
// ⭐ SSOT: 주문 레코드 정의는 여기서만
type Order struct {
	// Identity (생성 시 1회 부여, 재사용 금지)
	ID      int64 `json:"id"`
	Version int64 `json:"version"` // optimistic concurrency marker

	// Trade attributes
	Symbol         string    `json:"symbol"`
	Side           OrderSide `json:"side"`
	Qty            int64     `json:"qty"`
	OrderType      OrderType `json:"order_type"`
	LimitPrice     *float64  `json:"limit_price,omitempty"`
	StopPrice      *float64  `json:"stop_price,omitempty"`
	Strategy       string    `json:"strategy,omitempty"`
	StrategyParams MetaMap   `json:"strategy_params,omitempty"`

	// Lifecycle
	Status      OrderStatus `json:"status"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	ExpiredAt   *time.Time  `json:"expired_at,omitempty"`
	SubmittedAt *time.Time  `json:"submitted_at,omitempty"`
	ExecutedAt  *time.Time  `json:"executed_at,omitempty"`

	// Risk (Risk Scorer만 기록, 수기 편집 금지)
	RiskScore       float64      `json:"risk_score"`
	RiskFactors     []RiskFactor `json:"risk_factors,omitempty"`
	Recommendations []string     `json:"recommendations,omitempty"`

	// Compliance
	Compliance       []RuleResult `json:"compliance,omitempty"`
	ApprovalRequired bool         `json:"approval_required"` // 파생값, 호출자가 설정 불가

	// Approval
	ApprovedBy      string     `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
	RejectedAt      *time.Time `json:"rejected_at,omitempty"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CancelReason    string     `json:"cancel_reason,omitempty"`

	// Corrupted marks a historical record that failed to deserialize cleanly.
	// 조회는 실패시키지 않고 플래그로 노출
	Corrupted bool `json:"corrupted,omitempty"`
}

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	StatusStaged    OrderStatus = "STAGED"
	StatusPending   OrderStatus = "PENDING"
	StatusApproved  OrderStatus = "APPROVED"
	StatusRejected  OrderStatus = "REJECTED"
	StatusSubmitted OrderStatus = "SUBMITTED"
	StatusExecuted  OrderStatus = "EXECUTED"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusExpired   OrderStatus = "EXPIRED"
)

// Valid checks if the status is a known value
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusStaged, StatusPending, StatusApproved, StatusRejected,
		StatusSubmitted, StatusExecuted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Terminal checks if no further transition is legal from this status
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusExecuted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// OrderSide represents buy or sell
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Valid checks if the side is a known value
func (s OrderSide) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType represents market, limit or stop order
type OrderType string

const (
	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"
	TypeStop   OrderType = "STOP"
)

// Valid checks if the order type is a known value
func (t OrderType) Valid() bool {
	return t == TypeMarket || t == TypeLimit || t == TypeStop
}

// RequiresLimitPrice reports whether the type needs a limit price
func (t OrderType) RequiresLimitPrice() bool {
	return t == TypeLimit
}

// RequiresStopPrice reports whether the type needs a stop price
func (t OrderType) RequiresStopPrice() bool {
	return t == TypeStop
}

// RiskFactor is one named sub-score of the composite risk score
type RiskFactor struct {
	Name      string  `json:"name"`
	Score     float64 `json:"score"`  // [0,100]
	Weight    float64 `json:"weight"` // 합산 가중치
	Estimated bool    `json:"estimated"` // 데이터 결측으로 보수적 추정된 값인지
}

// RuleResult is the outcome of one compliance rule
type RuleResult struct {
	Rule        string  `json:"rule"`
	Passed      bool    `json:"passed"`
	Limit       float64 `json:"limit"`
	Current     float64 `json:"current"`
	Detail      string  `json:"detail,omitempty"`
	Unavailable bool    `json:"unavailable,omitempty"` // 참조 데이터 결측으로 평가 불가
}

// Age returns how long the order has existed relative to now
func (o *Order) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

// Notional returns the order's notional value at the given reference price.
// 지정가/스톱 주문은 자체 가격을 사용
func (o *Order) Notional(refPrice float64) float64 {
	price := refPrice
	if o.OrderType == TypeLimit && o.LimitPrice != nil {
		price = *o.LimitPrice
	}
	if o.OrderType == TypeStop && o.StopPrice != nil {
		price = *o.StopPrice
	}
	return float64(o.Qty) * price
}

// Clone returns a deep copy of the order
// 저장소 밖으로 내부 상태가 새지 않도록 복사해서 반환할 때 사용
func (o *Order) Clone() *Order {
	cp := *o

	if o.LimitPrice != nil {
		v := *o.LimitPrice
		cp.LimitPrice = &v
	}
	if o.StopPrice != nil {
		v := *o.StopPrice
		cp.StopPrice = &v
	}
	cp.ExpiredAt = copyTime(o.ExpiredAt)
	cp.SubmittedAt = copyTime(o.SubmittedAt)
	cp.ExecutedAt = copyTime(o.ExecutedAt)
	cp.ApprovedAt = copyTime(o.ApprovedAt)
	cp.RejectedAt = copyTime(o.RejectedAt)
	cp.CancelledAt = copyTime(o.CancelledAt)

	if o.StrategyParams != nil {
		cp.StrategyParams = o.StrategyParams.Clone()
	}
	if o.RiskFactors != nil {
		cp.RiskFactors = make([]RiskFactor, len(o.RiskFactors))
		copy(cp.RiskFactors, o.RiskFactors)
	}
	if o.Recommendations != nil {
		cp.Recommendations = make([]string, len(o.Recommendations))
		copy(cp.Recommendations, o.Recommendations)
	}
	if o.Compliance != nil {
		cp.Compliance = make([]RuleResult, len(o.Compliance))
		copy(cp.Compliance, o.Compliance)
	}

	return &cp
}

// ComplianceFailed reports whether any compliance rule failed
func (o *Order) ComplianceFailed() bool {
	for _, r := range o.Compliance {
		if !r.Passed {
			return true
		}
	}
	return false
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
