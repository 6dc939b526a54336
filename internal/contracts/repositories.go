package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// OrderRepository is the durable store of order records.
// 성공 반환 전에 쓰기가 내구적으로 반영되어야 하고, 실패한 쓰기는 이전
// 상태를 그대로 남겨야 함 (부분 업데이트 노출 금지)
type OrderRepository interface {
	// Create persists a new order, assigning its id and version 1, and
	// appends the creation audit entry in the same atomic write.
	Create(ctx context.Context, order *Order, entry *AuditEntry) (*Order, error)

	// GetByID returns the order or NotFoundError.
	GetByID(ctx context.Context, id int64) (*Order, error)

	// UpdateIfVersionMatches writes the order only when its stored version
	// equals expectedVersion, bumping the version and appending the audit
	// entry atomically. Returns ConflictError on version mismatch.
	UpdateIfVersionMatches(ctx context.Context, order *Order, expectedVersion int64, entry *AuditEntry) (*Order, error)

	// List returns a bounded page with a stable cursor. Malformed historical
	// records are returned with Corrupted=true instead of failing the query.
	List(ctx context.Context, filter OrderFilter) (*OrderPage, error)

	// AppendAudit appends an out-of-band audit entry (비전이 기록용).
	AppendAudit(ctx context.Context, entry *AuditEntry) error
}

// AuditRepository is the read side of the append-only audit log,
// queryable independently of orders
type AuditRepository interface {
	ListByOrder(ctx context.Context, orderID int64) ([]*AuditEntry, error)

	// ListAfter returns up to limit entries with id > afterID, in id order.
	// 리플레이/디버깅용 이터레이터의 페이지 단위
	ListAfter(ctx context.Context, afterID int64, limit int) ([]*AuditEntry, error)
}

// OrderFilter selects orders for List and bulk operations
type OrderFilter struct {
	Status    []OrderStatus
	Symbol    string
	CreatedBy string
	From      time.Time // zero = unbounded
	To        time.Time // zero = unbounded

	// Pagination
	Limit  int   // 0 = DefaultPageSize, capped at MaxPageSize
	Cursor int64 // exclusive id cursor, 0 = start
}

// Page size bounds
const (
	DefaultPageSize = 100
	MaxPageSize     = 500
)

// EffectiveLimit returns the bounded page size
func (f OrderFilter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		return MaxPageSize
	}
	return f.Limit
}

// Matches reports whether the order satisfies the non-pagination criteria
func (f OrderFilter) Matches(o *Order) bool {
	if len(f.Status) > 0 {
		ok := false
		for _, s := range f.Status {
			if o.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.CreatedBy != "" && o.CreatedBy != f.CreatedBy {
		return false
	}
	if !f.From.IsZero() && o.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !o.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// OrderPage is one bounded result page
type OrderPage struct {
	Orders     []*Order `json:"orders"`
	NextCursor int64    `json:"next_cursor"`
	HasMore    bool     `json:"has_more"`
}
