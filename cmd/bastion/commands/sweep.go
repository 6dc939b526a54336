package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/bastion/backend/internal/approval"
	"github.com/wonny/bastion/backend/internal/compliance"
	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/marketdata"
	"github.com/wonny/bastion/backend/internal/orders"
	"github.com/wonny/bastion/backend/internal/refdata"
	"github.com/wonny/bastion/backend/internal/risk"
	"github.com/wonny/bastion/backend/internal/staging"
	"github.com/wonny/bastion/backend/pkg/config"
	"github.com/wonny/bastion/backend/pkg/database"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// sweepCmd represents the sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "만료 스윕 1회 실행",
	Long: `staged/pending 상태로 최대 연령을 넘긴 주문을 만료 처리합니다.

스윕은 멱등이라 크론과 수동 실행이 겹쳐도 안전합니다.

Example:
  go run ./cmd/bastion sweep`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Bastion Expiry Sweep ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	orderRepo := orders.NewPostgres(db.Pool)
	limitsRepo := refdata.NewPostgres(db.Pool)

	// 스윕은 스코어링을 하지 않지만 엔진 구성은 동일
	engine := staging.NewEngine(
		orderRepo,
		risk.NewScorer(risk.FromPolicy(cfg.Policy)),
		compliance.Default(limitsRepo),
		marketdata.NewStatic(),
		contracts.SystemClock{},
		cfg.Policy,
		log,
	)
	workflow := approval.NewWorkflow(engine, 0, log)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := workflow.ExpireStale(ctx)
	if err != nil {
		return fmt.Errorf("❌ sweep failed: %w", err)
	}

	fmt.Println("✅ Sweep completed")
	fmt.Printf("   Scanned: %d\n", report.Scanned)
	fmt.Printf("   Expired: %d\n", report.Expired)
	fmt.Printf("   Skipped: %d\n", report.Skipped)
	fmt.Printf("   Failed:  %d\n", report.Failed)
	return nil
}
