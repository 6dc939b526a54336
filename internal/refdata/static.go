package refdata

import (
	"context"
	"sync"

	"github.com/wonny/bastion/backend/internal/contracts"
)

// Static serves limits from memory. 데모/테스트용 LimitsProvider
type Static struct {
	mu       sync.RWMutex
	bySymbol map[string]*contracts.ComplianceLimits
	fallback *contracts.ComplianceLimits
}

// NewStatic creates a provider with a global default
func NewStatic(fallback *contracts.ComplianceLimits) *Static {
	return &Static{
		bySymbol: make(map[string]*contracts.ComplianceLimits),
		fallback: fallback,
	}
}

var _ contracts.LimitsProvider = (*Static)(nil)

// Put registers symbol-specific limits
func (s *Static) Put(limits *contracts.ComplianceLimits) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySymbol[limits.Symbol] = limits
}

// Limits implements contracts.LimitsProvider
func (s *Static) Limits(ctx context.Context, symbol string) (*contracts.ComplianceLimits, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limits, ok := s.bySymbol[symbol]; ok {
		copied := *limits
		return &copied, nil
	}
	if s.fallback != nil {
		copied := *s.fallback
		return &copied, nil
	}
	return nil, &contracts.DependencyUnavailableError{
		Dependency: "compliance limits",
	}
}
