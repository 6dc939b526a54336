package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/bastion/backend/internal/api"
	"github.com/wonny/bastion/backend/internal/api/handlers"
	"github.com/wonny/bastion/backend/internal/approval"
	"github.com/wonny/bastion/backend/internal/audit"
	"github.com/wonny/bastion/backend/internal/compliance"
	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/marketdata"
	"github.com/wonny/bastion/backend/internal/orders"
	"github.com/wonny/bastion/backend/internal/refdata"
	"github.com/wonny/bastion/backend/internal/risk"
	"github.com/wonny/bastion/backend/internal/scheduler"
	"github.com/wonny/bastion/backend/internal/scheduler/jobs"
	"github.com/wonny/bastion/backend/internal/staging"
	"github.com/wonny/bastion/backend/pkg/config"
	"github.com/wonny/bastion/backend/pkg/database"
	"github.com/wonny/bastion/backend/pkg/logger"
	"github.com/wonny/bastion/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `주문 스테이징/승인 REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 주문 수명주기 엔드포인트 제공
- 만료 스윕 스케줄러 구동

Endpoints:
  GET  /health
  POST /api/orders                     - 주문 스테이징
  GET  /api/orders                     - 주문 목록
  POST /api/orders/{id}/approve        - 승인
  POST /api/orders/{id}/reject         - 거부
  GET  /api/approvals/queue            - 승인 대기 큐
  POST /api/approvals/sweep            - 수동 만료 스윕

Example:
  go run ./cmd/bastion api
  go run ./cmd/bastion api --port 8097`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: 설정값)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Bastion API Server ===")

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port": cfg.Port,
		"env":  cfg.Env,
	}).Info("Initializing API server")

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Connected to database")

	orderRepo := orders.NewPostgres(db.Pool)
	if err := orderRepo.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure staging schema: %w", err)
	}
	auditRepo := audit.NewRepository(db.Pool)
	limitsRepo := refdata.NewPostgres(db.Pool)
	if err := limitsRepo.EnsureSchema(context.Background()); err != nil {
		return fmt.Errorf("ensure limits schema: %w", err)
	}

	// 4. Redis (캐시/분산 레이트리밋, 비활성화 가능)
	redisClient, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer redisClient.Close()

	var rateLimiter *redis.RateLimiter
	if redisClient.Enabled() {
		rateLimiter = redis.NewRateLimiter(redisClient, "quotes")
		log.Info("Redis rate limiter enabled")
	}

	// 5. Market data: price cache + snapshot client + optional stream
	priceCache := marketdata.NewPriceCache(cfg.Quotes.CacheTTL, log)
	snapshots := marketdata.NewClient(cfg.Quotes, redisClient, rateLimiter, priceCache, log)

	var stream *marketdata.Stream
	if cfg.Quotes.StreamURL != "" {
		stream = marketdata.NewStream(cfg.Quotes.StreamURL, priceCache, log)
		if err := stream.Start(context.Background()); err != nil {
			log.WithError(err).Warn("Quote stream unavailable, continuing REST-only")
			stream = nil
		} else {
			defer stream.Stop()
		}
	}

	// 6. Scoring and compliance
	scorer := risk.NewScorer(risk.FromPolicy(cfg.Policy))
	evaluator := compliance.Default(limitsRepo)

	// 7. Staging engine and approval workflow
	engine := staging.NewEngine(orderRepo, scorer, evaluator, snapshots,
		contracts.SystemClock{}, cfg.Policy, log)
	workflow := approval.NewWorkflow(engine, 0, log)

	// 8. Expiry sweep scheduler
	sched := scheduler.New(log)
	sweepJob := jobs.NewExpirySweepJob(workflow, cfg.Policy.SweepSchedule, log)
	if err := sched.AddJob(sweepJob); err != nil {
		return fmt.Errorf("schedule expiry sweep: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	// 9. Router and server
	router := api.NewRouter(
		handlers.NewOrderHandler(engine, workflow, log),
		handlers.NewAuditHandler(auditRepo, log),
		log,
	)
	server := api.New(cfg, log, router)

	// 10. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
