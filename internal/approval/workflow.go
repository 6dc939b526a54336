package approval

import (
	"context"
	"sync"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/staging"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// =====================================================
// Approval Workflow
// 일괄 승인/거부와 만료 스윕
// =====================================================

// defaultConcurrency bounds the bulk fan-out
const defaultConcurrency = 8

// Workflow drives bulk approval operations on top of the staging engine
type Workflow struct {
	engine      *staging.Engine
	concurrency int
	log         *logger.Logger
}

func NewWorkflow(engine *staging.Engine, concurrency int, log *logger.Logger) *Workflow {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Workflow{engine: engine, concurrency: concurrency, log: log}
}

// BulkResult reports the outcome for one order in a bulk operation.
// 실패해도 전체 작업은 계속됨 (부분 성공 허용)
type BulkResult struct {
	OrderID int64  `json:"order_id"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"` // 에러 분류 (validation, conflict, ...)
}

// BulkApprove approves each order independently, bounded fan-out.
// 결과는 입력 순서 그대로
func (w *Workflow) BulkApprove(ctx context.Context, ids []int64, approver string) []BulkResult {
	return w.fanOut(ctx, ids, func(ctx context.Context, id int64) error {
		_, err := w.engine.Approve(ctx, id, approver)
		return err
	})
}

// BulkReject rejects each order independently with one shared reason
func (w *Workflow) BulkReject(ctx context.Context, ids []int64, approver, reason string) []BulkResult {
	return w.fanOut(ctx, ids, func(ctx context.Context, id int64) error {
		_, err := w.engine.Reject(ctx, id, approver, reason)
		return err
	})
}

// BulkApproveMatching approves every order matching the filter.
// 매칭 시점 스냅샷 기준: 수집 후 전이된 주문은 개별 결과로 실패 보고
func (w *Workflow) BulkApproveMatching(ctx context.Context, filter contracts.OrderFilter, approver string) ([]BulkResult, error) {
	ids, err := w.matchingIDs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return w.BulkApprove(ctx, ids, approver), nil
}

// BulkRejectMatching rejects every order matching the filter with one shared reason
func (w *Workflow) BulkRejectMatching(ctx context.Context, filter contracts.OrderFilter, approver, reason string) ([]BulkResult, error) {
	ids, err := w.matchingIDs(ctx, filter)
	if err != nil {
		return nil, err
	}
	return w.BulkReject(ctx, ids, approver, reason), nil
}

// matchingIDs pages through the filter and collects order ids (id 오름차순)
func (w *Workflow) matchingIDs(ctx context.Context, filter contracts.OrderFilter) ([]int64, error) {
	filter.Limit = contracts.MaxPageSize
	filter.Cursor = 0

	var ids []int64
	for {
		page, err := w.engine.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		for _, o := range page.Orders {
			ids = append(ids, o.ID)
		}
		if !page.HasMore {
			return ids, nil
		}
		filter.Cursor = page.NextCursor
	}
}

func (w *Workflow) fanOut(ctx context.Context, ids []int64, op func(context.Context, int64) error) []BulkResult {
	results := make([]BulkResult, len(ids))
	sem := make(chan struct{}, w.concurrency)

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id int64) {
			defer wg.Done()
			defer func() { <-sem }()

			err := op(ctx, id)
			if err != nil {
				results[i] = BulkResult{
					OrderID: id,
					Error:   err.Error(),
					Kind:    contracts.ErrorKind(err),
				}
				return
			}
			results[i] = BulkResult{OrderID: id, OK: true}
		}(i, id)
	}
	wg.Wait()

	return results
}

// =====================================================
// Expiry sweep
// =====================================================

// SweepReport summarizes one expiry sweep run
type SweepReport struct {
	Scanned int `json:"scanned"`
	Expired int `json:"expired"`
	Skipped int `json:"skipped"` // 경합으로 이미 전이된 주문
	Failed  int `json:"failed"`
}

// ExpireStale expires every staged/pending order past max age.
// 멱등: 경합으로 이미 만료/전이된 주문은 건너뜀
func (w *Workflow) ExpireStale(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	filter := contracts.OrderFilter{
		Status: []contracts.OrderStatus{contracts.StatusStaged, contracts.StatusPending},
		Limit:  contracts.MaxPageSize,
	}

	for {
		page, err := w.engine.List(ctx, filter)
		if err != nil {
			return report, err
		}

		for _, o := range page.Orders {
			report.Scanned++

			_, err := w.engine.Expire(ctx, o.ID)
			switch {
			case err == nil:
				report.Expired++
			case contracts.IsValidation(err):
				// 아직 연령 미달
				report.Skipped++
			case contracts.IsInvalidTransition(err) || contracts.IsConflict(err) || contracts.IsNotFound(err):
				// 스윕과 경합한 전이
				report.Skipped++
			default:
				report.Failed++
				w.log.WithError(err).WithOrder(o.ID).Error("Expiry sweep failed for order")
			}
		}

		if !page.HasMore {
			break
		}
		filter.Cursor = page.NextCursor
	}

	w.log.WithFields(map[string]interface{}{
		"scanned": report.Scanned,
		"expired": report.Expired,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	}).Info("Expiry sweep completed")

	return report, nil
}
