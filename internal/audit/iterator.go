package audit

import (
	"context"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Iterator streams the audit log in id order for replay/debugging.
// 페이지 단위로 당겨오며, 소진 후 새 엔트리가 추가되면 이어서 읽을 수 있음
type Iterator struct {
	repo     contracts.AuditRepository
	pageSize int

	buf    []*contracts.AuditEntry
	pos    int
	cursor int64 // 마지막으로 반환한 엔트리 id
}

func NewIterator(repo contracts.AuditRepository, pageSize int) *Iterator {
	if pageSize <= 0 {
		pageSize = contracts.DefaultPageSize
	}
	return &Iterator{repo: repo, pageSize: pageSize}
}

// Next returns the next entry, or (nil, nil) when the log is exhausted
func (it *Iterator) Next(ctx context.Context) (*contracts.AuditEntry, error) {
	if it.pos >= len(it.buf) {
		page, err := it.repo.ListAfter(ctx, it.cursor, it.pageSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return nil, nil
		}
		it.buf = page
		it.pos = 0
	}

	e := it.buf[it.pos]
	it.pos++
	it.cursor = e.ID
	return e, nil
}

// Cursor returns the id of the last returned entry (0 = none yet)
func (it *Iterator) Cursor() int64 {
	return it.cursor
}

// Replay walks the remaining log, invoking fn per entry until exhaustion
// or the first error. fn이 에러를 반환하면 그 자리에서 중단
func (it *Iterator) Replay(ctx context.Context, fn func(*contracts.AuditEntry) error) error {
	for {
		e, err := it.Next(ctx)
		if err != nil {
			return err
		}
		if e == nil {
			return nil
		}
		if err := fn(e); err != nil {
			return err
		}
	}
}
