package approval

import (
	"context"
	"sort"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Queue returns every pending order, highest risk first. Ties break on
// created time, earliest staged first: the longest-waiting order at a given
// risk level is served before newer arrivals, so nothing starves in the queue.
// 승인 데스크가 보는 작업 큐 (리스크 내림차순, 동점이면 생성 시각 오름차순)
func (w *Workflow) Queue(ctx context.Context) ([]*contracts.Order, error) {
	var pending []*contracts.Order

	filter := contracts.OrderFilter{
		Status: []contracts.OrderStatus{contracts.StatusPending},
		Limit:  contracts.MaxPageSize,
	}

	for {
		page, err := w.engine.List(ctx, filter)
		if err != nil {
			return nil, err
		}
		pending = append(pending, page.Orders...)

		if !page.HasMore {
			break
		}
		filter.Cursor = page.NextCursor
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if pending[i].RiskScore != pending[j].RiskScore {
			return pending[i].RiskScore > pending[j].RiskScore
		}
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	return pending, nil
}
