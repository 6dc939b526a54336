package orders

import (
	"context"
	"sort"
	"sync"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Memory is an in-memory OrderRepository/AuditRepository.
// 테스트와 로컬 데모용. 읽기/쓰기 모두 깊은 복사로 내부 상태를 보호
type Memory struct {
	mu          sync.RWMutex
	orders      map[int64]*contracts.Order
	audit       []*contracts.AuditEntry
	nextOrderID int64
	nextAuditID int64
}

func NewMemory() *Memory {
	return &Memory{
		orders:      make(map[int64]*contracts.Order),
		nextOrderID: 1,
		nextAuditID: 1,
	}
}

var (
	_ contracts.OrderRepository = (*Memory)(nil)
	_ contracts.AuditRepository = (*Memory)(nil)
)

func (m *Memory) Create(ctx context.Context, order *contracts.Order, entry *contracts.AuditEntry) (*contracts.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := order.Clone()
	stored.ID = m.nextOrderID
	m.nextOrderID++
	stored.Version = 1
	m.orders[stored.ID] = stored

	if entry != nil {
		e := *entry
		e.ID = m.nextAuditID
		m.nextAuditID++
		e.OrderID = stored.ID
		m.audit = append(m.audit, &e)
	}

	return stored.Clone(), nil
}

func (m *Memory) GetByID(ctx context.Context, id int64) (*contracts.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, &contracts.NotFoundError{OrderID: id}
	}
	return o.Clone(), nil
}

func (m *Memory) UpdateIfVersionMatches(ctx context.Context, order *contracts.Order, expectedVersion int64, entry *contracts.AuditEntry) (*contracts.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[order.ID]
	if !ok {
		return nil, &contracts.NotFoundError{OrderID: order.ID}
	}
	if stored.Version != expectedVersion {
		return nil, &contracts.ConflictError{OrderID: order.ID, Reason: "version mismatch"}
	}

	updated := order.Clone()
	updated.Version = expectedVersion + 1
	m.orders[order.ID] = updated

	if entry != nil {
		e := *entry
		e.ID = m.nextAuditID
		m.nextAuditID++
		e.OrderID = order.ID
		m.audit = append(m.audit, &e)
	}

	return updated.Clone(), nil
}

func (m *Memory) List(ctx context.Context, filter contracts.OrderFilter) (*contracts.OrderPage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	limit := filter.EffectiveLimit()
	page := &contracts.OrderPage{}

	for _, id := range ids {
		if id <= filter.Cursor {
			continue
		}
		o := m.orders[id]
		if !filter.Matches(o) {
			continue
		}
		if len(page.Orders) == limit {
			page.HasMore = true
			break
		}
		page.Orders = append(page.Orders, o.Clone())
		page.NextCursor = id
	}

	return page, nil
}

func (m *Memory) AppendAudit(ctx context.Context, entry *contracts.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *entry
	e.ID = m.nextAuditID
	m.nextAuditID++
	m.audit = append(m.audit, &e)
	return nil
}

func (m *Memory) ListByOrder(ctx context.Context, orderID int64) ([]*contracts.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*contracts.AuditEntry
	for _, e := range m.audit {
		if e.OrderID == orderID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *Memory) ListAfter(ctx context.Context, afterID int64, limit int) ([]*contracts.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = contracts.DefaultPageSize
	}

	var out []*contracts.AuditEntry
	for _, e := range m.audit {
		if e.ID <= afterID {
			continue
		}
		c := *e
		out = append(out, &c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
