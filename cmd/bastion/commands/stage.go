package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

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
	"github.com/wonny/bastion/backend/pkg/redis"
)

// stageCmd represents the stage command
var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "CLI에서 주문 스테이징",
	Long: `주문 하나를 스테이징하고 스코어링/컴플라이언스 결과를 출력합니다.

시세 서비스가 죽어 있으면 결측 처리로 진행되고,
모든 리스크 항목이 보수적 상한을 받습니다.

Example:
  go run ./cmd/bastion stage --symbol SPY --side BUY --qty 100
  go run ./cmd/bastion stage --symbol AAPL --side SELL --qty 50 --type LIMIT --limit-price 189.5`,
	RunE: runStage,
}

var (
	stageSymbol     string
	stageSide       string
	stageQty        int64
	stageType       string
	stageLimitPrice float64
	stageStopPrice  float64
	stageStrategy   string
	stageCreatedBy  string
)

func init() {
	rootCmd.AddCommand(stageCmd)

	stageCmd.Flags().StringVar(&stageSymbol, "symbol", "", "종목 심볼 (필수)")
	stageCmd.Flags().StringVar(&stageSide, "side", "BUY", "BUY | SELL")
	stageCmd.Flags().Int64Var(&stageQty, "qty", 0, "수량 (필수)")
	stageCmd.Flags().StringVar(&stageType, "type", "MARKET", "MARKET | LIMIT | STOP")
	stageCmd.Flags().Float64Var(&stageLimitPrice, "limit-price", 0, "지정가 (LIMIT 전용)")
	stageCmd.Flags().Float64Var(&stageStopPrice, "stop-price", 0, "스톱 가격 (STOP 전용)")
	stageCmd.Flags().StringVar(&stageStrategy, "strategy", "", "전략 이름")
	stageCmd.Flags().StringVar(&stageCreatedBy, "created-by", "cli", "생성자")
}

func runStage(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Bastion Stage Order ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	var (
		orderRepo contracts.OrderRepository
		limits    contracts.LimitsProvider
		snapshots contracts.SnapshotProvider
	)

	if cfg.Database.URL == "" {
		// DB 없이 데모 실행: 인메모리 저장소 + 결측 스냅샷
		// (모든 리스크 항목이 보수적 상한을 받음)
		fmt.Println("⚠️  DATABASE_URL not set, running on in-memory repository")
		orderRepo = orders.NewMemory()
		limits = refdata.NewStatic(&contracts.ComplianceLimits{
			MaxPositionQty:   10_000,
			MaxConcentration: 0.25,
			MaxNotional:      1_000_000,
		})
		snapshots = marketdata.NewStatic()
	} else {
		db, err := database.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		redisClient, err := redis.New(cfg)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer redisClient.Close()

		pgRepo := orders.NewPostgres(db.Pool)
		if err := pgRepo.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("ensure staging schema: %w", err)
		}
		limitsRepo := refdata.NewPostgres(db.Pool)
		if err := limitsRepo.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("ensure limits schema: %w", err)
		}

		priceCache := marketdata.NewPriceCache(cfg.Quotes.CacheTTL, log)

		orderRepo = pgRepo
		limits = limitsRepo
		snapshots = marketdata.NewClient(cfg.Quotes, redisClient, nil, priceCache, log)
	}

	engine := staging.NewEngine(
		orderRepo,
		risk.NewScorer(risk.FromPolicy(cfg.Policy)),
		compliance.Default(limits),
		snapshots,
		contracts.SystemClock{},
		cfg.Policy,
		log,
	)

	draft := staging.OrderDraft{
		Symbol:    stageSymbol,
		Side:      contracts.OrderSide(strings.ToUpper(stageSide)),
		Qty:       stageQty,
		OrderType: contracts.OrderType(strings.ToUpper(stageType)),
		Strategy:  stageStrategy,
		CreatedBy: stageCreatedBy,
	}
	if stageLimitPrice > 0 {
		draft.LimitPrice = &stageLimitPrice
	}
	if stageStopPrice > 0 {
		draft.StopPrice = &stageStopPrice
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	order, err := engine.Stage(ctx, draft)
	if err != nil {
		return fmt.Errorf("❌ stage failed: %w", err)
	}

	fmt.Printf("✅ Order %d staged (status: %s)\n\n", order.ID, order.Status)
	fmt.Printf("   Risk Score: %.1f (approval required: %v)\n", order.RiskScore, order.ApprovalRequired)
	for _, f := range order.RiskFactors {
		flag := ""
		if f.Estimated {
			flag = " (estimated)"
		}
		fmt.Printf("   - %-15s %.1f × %.2f%s\n", f.Name, f.Score, f.Weight, flag)
	}

	fmt.Println("\n   Compliance:")
	for _, r := range order.Compliance {
		mark := "✅"
		if !r.Passed {
			mark = "❌"
		}
		fmt.Printf("   %s %-22s %s\n", mark, r.Rule, r.Detail)
	}

	if verbose {
		raw, _ := json.MarshalIndent(order, "", "  ")
		fmt.Printf("\n%s\n", raw)
	}

	return nil
}
