package marketdata

import (
	"context"
	"sync"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Static serves fixed snapshots. 데모/테스트용 SnapshotProvider
type Static struct {
	mu    sync.RWMutex
	snaps map[string]*contracts.MarketSnapshot
}

func NewStatic() *Static {
	return &Static{snaps: make(map[string]*contracts.MarketSnapshot)}
}

var _ contracts.SnapshotProvider = (*Static)(nil)

// Put registers a snapshot for a symbol
func (s *Static) Put(snap *contracts.MarketSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.Symbol] = snap
}

// Snapshot returns the registered snapshot, or an all-missing one
func (s *Static) Snapshot(ctx context.Context, symbol string) (*contracts.MarketSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if snap, ok := s.snaps[symbol]; ok {
		copied := *snap
		return &copied, nil
	}
	return &contracts.MarketSnapshot{Symbol: symbol}, nil
}
