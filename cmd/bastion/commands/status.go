package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/orders"
	"github.com/wonny/bastion/backend/pkg/config"
	"github.com/wonny/bastion/backend/pkg/database"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "스테이징 현황 조회",
	Long: `상태별 주문 수와 승인 대기 큐 상위 항목을 표시합니다.

Example:
  go run ./cmd/bastion status
  go run ./cmd/bastion status --top 20`,
	RunE: runStatus,
}

var statusTop int

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().IntVar(&statusTop, "top", 10, "표시할 대기 주문 수")
}

func runStatus(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Bastion Staging Status ===")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := database.New(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	repo := orders.NewPostgres(db.Pool)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 상태별 집계
	statuses := []contracts.OrderStatus{
		contracts.StatusStaged, contracts.StatusPending, contracts.StatusApproved,
		contracts.StatusRejected, contracts.StatusSubmitted, contracts.StatusExecuted,
		contracts.StatusCancelled, contracts.StatusExpired,
	}

	fmt.Println("\n📊 Orders by status:")
	for _, status := range statuses {
		count, err := countByStatus(ctx, repo, status)
		if err != nil {
			return err
		}
		if count > 0 {
			fmt.Printf("   %-10s %d\n", status, count)
		}
	}

	// 승인 대기 상위
	page, err := repo.List(ctx, contracts.OrderFilter{
		Status: []contracts.OrderStatus{contracts.StatusPending},
		Limit:  statusTop,
	})
	if err != nil {
		return fmt.Errorf("list pending orders: %w", err)
	}

	if len(page.Orders) == 0 {
		fmt.Println("\n✅ No orders awaiting approval")
		return nil
	}

	fmt.Printf("\n⏳ Awaiting approval (top %d):\n", statusTop)
	for _, o := range page.Orders {
		fmt.Printf("   #%-5d %-6s %-4s %6d  risk %.1f  created %s\n",
			o.ID, o.Symbol, o.Side, o.Qty, o.RiskScore,
			o.CreatedAt.Format("2006-01-02 15:04"))
	}

	return nil
}

func countByStatus(ctx context.Context, repo *orders.Postgres, status contracts.OrderStatus) (int, error) {
	total := 0
	filter := contracts.OrderFilter{
		Status: []contracts.OrderStatus{status},
		Limit:  contracts.MaxPageSize,
	}

	for {
		page, err := repo.List(ctx, filter)
		if err != nil {
			return 0, fmt.Errorf("count %s orders: %w", status, err)
		}
		total += len(page.Orders)
		if !page.HasMore {
			return total, nil
		}
		filter.Cursor = page.NextCursor
	}
}
