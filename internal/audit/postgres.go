package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Repository is the read side of the append-only audit log
// ⭐ SSOT: 감사 로그 조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ contracts.AuditRepository = (*Repository)(nil)

const auditColumns = `id, order_id, kind, actor, timestamp, from_status, to_status, detail`

// ListByOrder returns every entry for one order, oldest first
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]*contracts.AuditEntry, error) {
	query := `
		SELECT ` + auditColumns + `
		FROM staging.audit_log
		WHERE order_id = $1
		ORDER BY id
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries for order %d: %w", orderID, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ListAfter returns up to limit entries with id > afterID, in id order
func (r *Repository) ListAfter(ctx context.Context, afterID int64, limit int) ([]*contracts.AuditEntry, error) {
	if limit <= 0 {
		limit = contracts.DefaultPageSize
	}

	query := `
		SELECT ` + auditColumns + `
		FROM staging.audit_log
		WHERE id > $1
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries after %d: %w", afterID, err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

func collectEntries(rows pgx.Rows) ([]*contracts.AuditEntry, error) {
	var out []*contracts.AuditEntry
	for rows.Next() {
		var e contracts.AuditEntry
		var kind, fromStatus, toStatus string

		err := rows.Scan(&e.ID, &e.OrderID, &kind, &e.Actor, &e.Timestamp,
			&fromStatus, &toStatus, &e.Detail)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		e.Kind = contracts.TransitionKind(kind)
		e.FromStatus = contracts.OrderStatus(fromStatus)
		e.ToStatus = contracts.OrderStatus(toStatus)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}
	return out, nil
}
