package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/internal/orders"
)

func seedAudit(t *testing.T, m *orders.Memory, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, m.AppendAudit(context.Background(), &contracts.AuditEntry{
			OrderID: int64(i%2 + 1),
			Kind:    contracts.TransitionUpdated,
			Actor:   "trader-1",
		}))
	}
}

func TestIterator_WalksInIDOrder(t *testing.T) {
	m := orders.NewMemory()
	seedAudit(t, m, 7)

	it := NewIterator(m, 3) // 페이지 크기보다 많은 엔트리

	var ids []int64
	for {
		e, err := it.Next(context.Background())
		require.NoError(t, err)
		if e == nil {
			break
		}
		ids = append(ids, e.ID)
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5, 6, 7}, ids)
	assert.Equal(t, int64(7), it.Cursor())
}

func TestIterator_ResumesAfterExhaustion(t *testing.T) {
	m := orders.NewMemory()
	seedAudit(t, m, 2)

	it := NewIterator(m, 10)

	for i := 0; i < 2; i++ {
		e, err := it.Next(context.Background())
		require.NoError(t, err)
		require.NotNil(t, e)
	}

	e, err := it.Next(context.Background())
	require.NoError(t, err)
	assert.Nil(t, e, "exhausted log returns nil")

	// 새 엔트리가 추가되면 이어서 읽힘
	seedAudit(t, m, 1)
	e, err = it.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, int64(3), e.ID)
}

func TestIterator_Replay(t *testing.T) {
	m := orders.NewMemory()
	seedAudit(t, m, 5)

	it := NewIterator(m, 2)

	count := 0
	err := it.Replay(context.Background(), func(e *contracts.AuditEntry) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}
