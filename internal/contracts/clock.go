package contracts

import "time"

// Clock abstracts time so that expiry and timestamps are testable
// ⭐ SSOT: 엔진/워크플로우는 time.Now() 직접 호출 금지
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock returns a settable time, for tests
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time {
	return c.T
}

// Advance moves the fixed clock forward
func (c *FixedClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}
