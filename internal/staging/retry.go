package staging

import (
	"context"
	"time"

	"github.com/wonny/bastion/backend/internal/contracts"
	"github.com/wonny/bastion/backend/pkg/logger"
)

// Retrier는 낙관적 동시성 충돌(ConflictError)만 제한 횟수 재시도
// 다른 에러는 즉시 반환
type Retrier struct {
	maxAttempts int
	backoff     time.Duration
	log         *logger.Logger
}

func NewRetrier(maxAttempts int, backoff time.Duration, log *logger.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Retrier{maxAttempts: maxAttempts, backoff: backoff, log: log}
}

// Do runs fn until it succeeds, returns a non-conflict error,
// or attempts are exhausted. Backoff grows linearly per attempt.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !contracts.IsConflict(err) {
			return err
		}
		lastErr = err

		if attempt == r.maxAttempts {
			break
		}

		r.log.WithFields(map[string]interface{}{
			"op":      op,
			"attempt": attempt,
		}).Warn("Version conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}

	return lastErr
}
