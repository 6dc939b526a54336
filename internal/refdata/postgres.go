package refdata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Postgres serves compliance limits from reference data tables.
// ⭐ SSOT: 컴플라이언스 한도 조회는 여기서만
//
// 심볼별 행이 없으면 전역 기본값(symbol = '')로 폴백.
// 둘 다 없으면 DependencyUnavailableError — 규칙 평가부가
// unavailable 처리하도록 에러로 올림
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

var _ contracts.LimitsProvider = (*Postgres)(nil)

// Schema is the DDL for the reference data table
const Schema = `
CREATE TABLE IF NOT EXISTS staging.compliance_limits (
	symbol            TEXT PRIMARY KEY,
	max_position_qty  BIGINT NOT NULL,
	max_concentration DOUBLE PRECISION NOT NULL,
	max_notional      DOUBLE PRECISION NOT NULL
);
`

// EnsureSchema creates the limits table if it does not exist
func (r *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create limits table: %w", err)
	}
	return nil
}

// Limits implements contracts.LimitsProvider
func (r *Postgres) Limits(ctx context.Context, symbol string) (*contracts.ComplianceLimits, error) {
	query := `
		SELECT symbol, max_position_qty, max_concentration, max_notional
		FROM staging.compliance_limits
		WHERE symbol IN ($1, '')
		ORDER BY symbol DESC
		LIMIT 1
	`

	var limits contracts.ComplianceLimits
	err := r.pool.QueryRow(ctx, query, symbol).Scan(
		&limits.Symbol, &limits.MaxPositionQty, &limits.MaxConcentration, &limits.MaxNotional,
	)
	if err == pgx.ErrNoRows {
		return nil, &contracts.DependencyUnavailableError{
			Dependency: "compliance limits",
			Err:        fmt.Errorf("no limits configured for %s and no global default", symbol),
		}
	}
	if err != nil {
		return nil, &contracts.DependencyUnavailableError{
			Dependency: "compliance limits",
			Err:        err,
		}
	}

	return &limits, nil
}

// Upsert writes one limits row (운영 세팅용)
func (r *Postgres) Upsert(ctx context.Context, limits *contracts.ComplianceLimits) error {
	query := `
		INSERT INTO staging.compliance_limits (symbol, max_position_qty, max_concentration, max_notional)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (symbol) DO UPDATE SET
			max_position_qty = EXCLUDED.max_position_qty,
			max_concentration = EXCLUDED.max_concentration,
			max_notional = EXCLUDED.max_notional
	`

	_, err := r.pool.Exec(ctx, query,
		limits.Symbol, limits.MaxPositionQty, limits.MaxConcentration, limits.MaxNotional)
	if err != nil {
		return fmt.Errorf("failed to upsert limits for %q: %w", limits.Symbol, err)
	}
	return nil
}
