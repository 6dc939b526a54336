package staging

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/pkg/logger"
)

func TestRetrier_RetriesConflictOnly(t *testing.T) {
	r := NewRetrier(3, time.Millisecond, logger.NewWriter(io.Discard))

	// 충돌은 재시도 → 두 번째 시도에서 성공
	calls := 0
	err := r.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return &contracts.ConflictError{OrderID: 1, Reason: "version mismatch"}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	// 다른 에러는 즉시 반환
	calls = 0
	boom := errors.New("boom")
	err = r.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestRetrier_ExhaustsAttempts(t *testing.T) {
	r := NewRetrier(3, time.Millisecond, logger.NewWriter(io.Discard))

	calls := 0
	err := r.Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return &contracts.ConflictError{OrderID: 1, Reason: "version mismatch"}
	})

	assert.True(t, contracts.IsConflict(err), "exhausted retries must surface the conflict")
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsOnContextCancel(t *testing.T) {
	r := NewRetrier(5, 50*time.Millisecond, logger.NewWriter(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, "test", func(ctx context.Context) error {
		calls++
		return &contracts.ConflictError{OrderID: 1, Reason: "version mismatch"}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 5)
}
