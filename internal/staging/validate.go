package staging

import (
	"strings"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// OrderDraft is the caller-supplied input to Stage
type OrderDraft struct {
	Symbol         string              `json:"symbol"`
	Side           contracts.OrderSide `json:"side"`
	Qty            int64               `json:"qty"`
	OrderType      contracts.OrderType `json:"order_type"`
	LimitPrice     *float64            `json:"limit_price,omitempty"`
	StopPrice      *float64            `json:"stop_price,omitempty"`
	Strategy       string              `json:"strategy,omitempty"`
	StrategyParams contracts.MetaMap   `json:"strategy_params,omitempty"`
	CreatedBy      string              `json:"created_by"`
}

// UpdateRequest carries pre-approval trade attribute changes.
// nil 필드는 변경 없음. 심볼/방향 변경은 별도 주문으로 취급 (허용 안 함)
type UpdateRequest struct {
	Qty            *int64              `json:"qty,omitempty"`
	OrderType      *contracts.OrderType `json:"order_type,omitempty"`
	LimitPrice     *float64            `json:"limit_price,omitempty"`
	StopPrice      *float64            `json:"stop_price,omitempty"`
	Strategy       *string             `json:"strategy,omitempty"`
	StrategyParams contracts.MetaMap   `json:"strategy_params,omitempty"`
}

// Empty reports whether the request changes nothing
func (u UpdateRequest) Empty() bool {
	return u.Qty == nil && u.OrderType == nil && u.LimitPrice == nil &&
		u.StopPrice == nil && u.Strategy == nil && u.StrategyParams == nil
}

// validateDraft checks structural fields, collecting every violation
// (첫 번째 위반에서 멈추지 않음)
func validateDraft(d OrderDraft) *contracts.ValidationError {
	var fields []contracts.FieldError

	add := func(field, msg string) {
		fields = append(fields, contracts.FieldError{Field: field, Message: msg})
	}

	if strings.TrimSpace(d.Symbol) == "" {
		add("symbol", "required")
	}
	if !d.Side.Valid() {
		add("side", "must be BUY or SELL")
	}
	if d.Qty <= 0 {
		add("qty", "must be > 0")
	}
	if !d.OrderType.Valid() {
		add("order_type", "must be MARKET, LIMIT or STOP")
	}
	if strings.TrimSpace(d.CreatedBy) == "" {
		add("created_by", "required")
	}

	// 가격 필드는 요구하는 주문 유형에만 존재해야 함
	if d.OrderType.Valid() {
		if d.OrderType.RequiresLimitPrice() {
			if d.LimitPrice == nil {
				add("limit_price", "required for LIMIT orders")
			} else if *d.LimitPrice <= 0 {
				add("limit_price", "must be > 0")
			}
		} else if d.LimitPrice != nil {
			add("limit_price", "only allowed for LIMIT orders")
		}

		if d.OrderType.RequiresStopPrice() {
			if d.StopPrice == nil {
				add("stop_price", "required for STOP orders")
			} else if *d.StopPrice <= 0 {
				add("stop_price", "must be > 0")
			}
		} else if d.StopPrice != nil {
			add("stop_price", "only allowed for STOP orders")
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &contracts.ValidationError{Fields: fields}
}

// validateOrder re-checks structure after an update is applied
func validateOrder(o *contracts.Order) *contracts.ValidationError {
	return validateDraft(OrderDraft{
		Symbol:     o.Symbol,
		Side:       o.Side,
		Qty:        o.Qty,
		OrderType:  o.OrderType,
		LimitPrice: o.LimitPrice,
		StopPrice:  o.StopPrice,
		CreatedBy:  o.CreatedBy,
	})
}
