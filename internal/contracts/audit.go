package contracts

import "time"

// TransitionKind names one audited state-machine event
type TransitionKind string

const (
	TransitionCreated   TransitionKind = "created"
	TransitionUpdated   TransitionKind = "updated"
	TransitionApproved  TransitionKind = "approved"
	TransitionRejected  TransitionKind = "rejected"
	TransitionCancelled TransitionKind = "cancelled"
	TransitionExpired   TransitionKind = "expired"
	TransitionSubmitted TransitionKind = "submitted"
	TransitionExecuted  TransitionKind = "executed"
)

// AuditEntry records one transition, append-only and immutable once written
// 주문 id만 역참조로 보관 (소유권 없음)
type AuditEntry struct {
	ID         int64          `json:"id"`
	OrderID    int64          `json:"order_id"`
	Kind       TransitionKind `json:"kind"`
	Actor      string         `json:"actor"`
	Timestamp  time.Time      `json:"timestamp"`
	FromStatus OrderStatus    `json:"from_status"`
	ToStatus   OrderStatus    `json:"to_status"`
	Detail     string         `json:"detail,omitempty"`
}
