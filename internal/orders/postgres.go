package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Postgres persists orders and their audit trail.
// ⭐ SSOT: 주문 영속화는 여기서만 (staging.orders / staging.audit_log)
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ contracts.OrderRepository = (*Postgres)(nil)

const orderColumns = `
	id, version, symbol, side, qty, order_type, limit_price, stop_price,
	strategy, strategy_params, status, created_by, created_at, updated_at,
	expired_at, submitted_at, executed_at,
	risk_score, risk_factors, recommendations, compliance, approval_required,
	approved_by, approved_at, rejected_at, rejection_reason,
	cancelled_at, cancel_reason`

// Schema is the DDL for the staging schema (bastion sweep --init-db 참조)
const Schema = `
CREATE SCHEMA IF NOT EXISTS staging;

CREATE TABLE IF NOT EXISTS staging.orders (
	id               BIGSERIAL PRIMARY KEY,
	version          BIGINT NOT NULL DEFAULT 1,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	qty              BIGINT NOT NULL,
	order_type       TEXT NOT NULL,
	limit_price      DOUBLE PRECISION,
	stop_price       DOUBLE PRECISION,
	strategy         TEXT NOT NULL DEFAULT '',
	strategy_params  JSONB,
	status           TEXT NOT NULL,
	created_by       TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	expired_at       TIMESTAMPTZ,
	submitted_at     TIMESTAMPTZ,
	executed_at      TIMESTAMPTZ,
	risk_score       DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk_factors     JSONB,
	recommendations  JSONB,
	compliance       JSONB,
	approval_required BOOLEAN NOT NULL DEFAULT FALSE,
	approved_by      TEXT NOT NULL DEFAULT '',
	approved_at      TIMESTAMPTZ,
	rejected_at      TIMESTAMPTZ,
	rejection_reason TEXT NOT NULL DEFAULT '',
	cancelled_at     TIMESTAMPTZ,
	cancel_reason    TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_orders_status ON staging.orders (status, created_at);
CREATE INDEX IF NOT EXISTS idx_orders_symbol ON staging.orders (symbol);

CREATE TABLE IF NOT EXISTS staging.audit_log (
	id          BIGSERIAL PRIMARY KEY,
	order_id    BIGINT NOT NULL,
	kind        TEXT NOT NULL,
	actor       TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	from_status TEXT NOT NULL DEFAULT '',
	to_status   TEXT NOT NULL,
	detail      TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_audit_order ON staging.audit_log (order_id, id);
`

// EnsureSchema creates the staging tables if they do not exist
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create staging schema: %w", err)
	}
	return nil
}

// Create persists a new order and its creation audit entry atomically
func (r *Postgres) Create(ctx context.Context, order *contracts.Order, entry *contracts.AuditEntry) (*contracts.Order, error) {
	cols, err := marshalJSONColumns(order)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO staging.orders (
			version, symbol, side, qty, order_type, limit_price, stop_price,
			strategy, strategy_params, status, created_by, created_at, updated_at,
			risk_score, risk_factors, recommendations, compliance, approval_required
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id
	`

	var id int64
	err = tx.QueryRow(ctx, query,
		1, order.Symbol, string(order.Side), order.Qty, string(order.OrderType),
		order.LimitPrice, order.StopPrice,
		order.Strategy, cols.strategyParams, string(order.Status), order.CreatedBy,
		order.CreatedAt, order.UpdatedAt,
		order.RiskScore, cols.riskFactors, cols.recommendations, cols.compliance,
		order.ApprovalRequired,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	if entry != nil {
		e := *entry
		e.OrderID = id
		if err := insertAudit(ctx, tx, &e); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order insert: %w", err)
	}

	created := order.Clone()
	created.ID = id
	created.Version = 1
	return created, nil
}

// GetByID returns the order or NotFoundError
func (r *Postgres) GetByID(ctx context.Context, id int64) (*contracts.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM staging.orders WHERE id = $1`

	order, err := scanOrder(r.pool.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, &contracts.NotFoundError{OrderID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %d: %w", id, err)
	}
	return order, nil
}

// UpdateIfVersionMatches performs the conditional write.
// 저장된 버전이 다르면 ConflictError, 행이 없으면 NotFoundError
func (r *Postgres) UpdateIfVersionMatches(ctx context.Context, order *contracts.Order, expectedVersion int64, entry *contracts.AuditEntry) (*contracts.Order, error) {
	cols, err := marshalJSONColumns(order)
	if err != nil {
		return nil, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE staging.orders SET
			version = version + 1,
			symbol = $3, side = $4, qty = $5, order_type = $6,
			limit_price = $7, stop_price = $8,
			strategy = $9, strategy_params = $10, status = $11,
			updated_at = $12, expired_at = $13, submitted_at = $14, executed_at = $15,
			risk_score = $16, risk_factors = $17, recommendations = $18,
			compliance = $19, approval_required = $20,
			approved_by = $21, approved_at = $22,
			rejected_at = $23, rejection_reason = $24,
			cancelled_at = $25, cancel_reason = $26
		WHERE id = $1 AND version = $2
	`

	tag, err := tx.Exec(ctx, query,
		order.ID, expectedVersion,
		order.Symbol, string(order.Side), order.Qty, string(order.OrderType),
		order.LimitPrice, order.StopPrice,
		order.Strategy, cols.strategyParams, string(order.Status),
		order.UpdatedAt, order.ExpiredAt, order.SubmittedAt, order.ExecutedAt,
		order.RiskScore, cols.riskFactors, cols.recommendations,
		cols.compliance, order.ApprovalRequired,
		order.ApprovedBy, order.ApprovedAt,
		order.RejectedAt, order.RejectionReason,
		order.CancelledAt, order.CancelReason,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %d: %w", order.ID, err)
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM staging.orders WHERE id = $1)", order.ID,
		).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check order %d: %w", order.ID, err)
		}
		if !exists {
			return nil, &contracts.NotFoundError{OrderID: order.ID}
		}
		return nil, &contracts.ConflictError{OrderID: order.ID, Reason: "version mismatch"}
	}

	if entry != nil {
		e := *entry
		e.OrderID = order.ID
		if err := insertAudit(ctx, tx, &e); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order update: %w", err)
	}

	updated := order.Clone()
	updated.Version = expectedVersion + 1
	return updated, nil
}

// List returns a bounded page ordered by id.
// limit+1 조회로 HasMore 판정, JSONB 손상 행은 Corrupted=true로 반환
func (r *Postgres) List(ctx context.Context, filter contracts.OrderFilter) (*contracts.OrderPage, error) {
	where := []string{"id > $1"}
	args := []interface{}{filter.Cursor}

	if len(filter.Status) > 0 {
		statuses := make([]string, len(filter.Status))
		for i, s := range filter.Status {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		where = append(where, fmt.Sprintf("symbol = $%d", len(args)))
	}
	if filter.CreatedBy != "" {
		args = append(args, filter.CreatedBy)
		where = append(where, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}

	limit := filter.EffectiveLimit()
	args = append(args, limit+1)

	query := fmt.Sprintf(
		`SELECT %s FROM staging.orders WHERE %s ORDER BY id LIMIT $%d`,
		orderColumns, strings.Join(where, " AND "), len(args),
	)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	page := &contracts.OrderPage{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		if len(page.Orders) == limit {
			page.HasMore = true
			break
		}
		page.Orders = append(page.Orders, order)
		page.NextCursor = order.ID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate orders: %w", err)
	}

	return page, nil
}

// AppendAudit appends an out-of-band audit entry
func (r *Postgres) AppendAudit(ctx context.Context, entry *contracts.AuditEntry) error {
	return insertAudit(ctx, r.pool, entry)
}

// =====================================================
// Row mapping
// =====================================================

// execer covers both pgxpool.Pool and pgx.Tx
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertAudit(ctx context.Context, db execer, entry *contracts.AuditEntry) error {
	query := `
		INSERT INTO staging.audit_log (order_id, kind, actor, timestamp, from_status, to_status, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := db.Exec(ctx, query,
		entry.OrderID, string(entry.Kind), entry.Actor, entry.Timestamp,
		string(entry.FromStatus), string(entry.ToStatus), entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

type jsonColumns struct {
	strategyParams  []byte
	riskFactors     []byte
	recommendations []byte
	compliance      []byte
}

func marshalJSONColumns(order *contracts.Order) (*jsonColumns, error) {
	cols := &jsonColumns{}
	var err error

	if order.StrategyParams != nil {
		if cols.strategyParams, err = json.Marshal(order.StrategyParams); err != nil {
			return nil, fmt.Errorf("failed to marshal strategy params: %w", err)
		}
	}
	if order.RiskFactors != nil {
		if cols.riskFactors, err = json.Marshal(order.RiskFactors); err != nil {
			return nil, fmt.Errorf("failed to marshal risk factors: %w", err)
		}
	}
	if order.Recommendations != nil {
		if cols.recommendations, err = json.Marshal(order.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to marshal recommendations: %w", err)
		}
	}
	if order.Compliance != nil {
		if cols.compliance, err = json.Marshal(order.Compliance); err != nil {
			return nil, fmt.Errorf("failed to marshal compliance results: %w", err)
		}
	}
	return cols, nil
}

func scanOrder(row pgx.Row) (*contracts.Order, error) {
	var o contracts.Order
	var side, orderType, status string
	var strategyParams, riskFactors, recommendations, compliance []byte

	err := row.Scan(
		&o.ID, &o.Version, &o.Symbol, &side, &o.Qty, &orderType,
		&o.LimitPrice, &o.StopPrice,
		&o.Strategy, &strategyParams, &status, &o.CreatedBy,
		&o.CreatedAt, &o.UpdatedAt,
		&o.ExpiredAt, &o.SubmittedAt, &o.ExecutedAt,
		&o.RiskScore, &riskFactors, &recommendations, &compliance,
		&o.ApprovalRequired,
		&o.ApprovedBy, &o.ApprovedAt, &o.RejectedAt, &o.RejectionReason,
		&o.CancelledAt, &o.CancelReason,
	)
	if err != nil {
		return nil, err
	}

	o.Side = contracts.OrderSide(side)
	o.OrderType = contracts.OrderType(orderType)
	o.Status = contracts.OrderStatus(status)

	// JSONB 손상은 행 전체를 실패시키지 않고 Corrupted로 표시
	if len(strategyParams) > 0 {
		if err := json.Unmarshal(strategyParams, &o.StrategyParams); err != nil {
			o.StrategyParams = nil
			o.Corrupted = true
		}
	}
	if len(riskFactors) > 0 {
		if err := json.Unmarshal(riskFactors, &o.RiskFactors); err != nil {
			o.RiskFactors = nil
			o.Corrupted = true
		}
	}
	if len(recommendations) > 0 {
		if err := json.Unmarshal(recommendations, &o.Recommendations); err != nil {
			o.Recommendations = nil
			o.Corrupted = true
		}
	}
	if len(compliance) > 0 {
		if err := json.Unmarshal(compliance, &o.Compliance); err != nil {
			o.Compliance = nil
			o.Corrupted = true
		}
	}

	return &o, nil
}
