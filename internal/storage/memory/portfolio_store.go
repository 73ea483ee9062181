package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// PortfolioStore is an in-memory crawler.PortfolioStore.
type PortfolioStore struct {
	mu         sync.RWMutex
	portfolios map[string]crawler.Portfolio
	now        func() time.Time
}

// NewPortfolioStore constructs a PortfolioStore.
func NewPortfolioStore() *PortfolioStore {
	return &PortfolioStore{
		portfolios: make(map[string]crawler.Portfolio),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetPortfolio returns the user's portfolio.
func (s *PortfolioStore) GetPortfolio(_ context.Context, userID string) (crawler.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.portfolios[userID]
	if !ok {
		return crawler.Portfolio{}, fmt.Errorf("portfolio for user %s: %w", userID, crawler.ErrNotFound)
	}
	return p, nil
}

// SetPortfolioStatus upserts status and error, leaving data untouched.
func (s *PortfolioStore) SetPortfolioStatus(
	_ context.Context,
	userID string,
	status crawler.PortfolioStatus,
	errMsg string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	p, ok := s.portfolios[userID]
	if !ok {
		p = crawler.Portfolio{UserID: userID, CreatedAt: now}
	}
	p.Status = status
	p.Error = errMsg
	p.UpdatedAt = now
	s.portfolios[userID] = p
	return nil
}

// SavePortfolio stores generated data and marks the portfolio completed.
func (s *PortfolioStore) SavePortfolio(
	_ context.Context,
	userID string,
	data crawler.PortfolioData,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	p, ok := s.portfolios[userID]
	if !ok {
		p = crawler.Portfolio{UserID: userID, CreatedAt: now}
	}
	d := data
	generated := at
	p.Status = crawler.PortfolioCompleted
	p.Error = ""
	p.Data = &d
	p.LastGenerated = &generated
	p.UpdatedAt = now
	s.portfolios[userID] = p
	return nil
}
