package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// PortfolioStore persists aggregation results in the portfolios table.
type PortfolioStore struct {
	db  querier
	now func() time.Time
}

// NewPortfolioStore constructs a PortfolioStore on db.
func NewPortfolioStore(db querier) (*PortfolioStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PortfolioStore{db: db, now: utcNow}, nil
}

// GetPortfolio loads the user's portfolio.
func (s *PortfolioStore) GetPortfolio(ctx context.Context, userID string) (crawler.Portfolio, error) {
	query, args, err := psql.Select(
		"user_id", "status", "error", "data", "last_generated", "created_at", "updated_at",
	).
		From("portfolios").
		Where(sq.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return crawler.Portfolio{}, fmt.Errorf("build select portfolio: %w", err)
	}
	var (
		p      crawler.Portfolio
		status string
		data   []byte
	)
	err = s.db.QueryRow(ctx, query, args...).Scan(
		&p.UserID,
		&status,
		&p.Error,
		&data,
		&p.LastGenerated,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.Portfolio{}, fmt.Errorf("portfolio for user %s: %w", userID, crawler.ErrNotFound)
		}
		return crawler.Portfolio{}, fmt.Errorf("get portfolio: %w", err)
	}
	p.Status = crawler.PortfolioStatus(status)
	if len(data) > 0 {
		var decoded crawler.PortfolioData
		if err := json.Unmarshal(data, &decoded); err != nil {
			return crawler.Portfolio{}, fmt.Errorf("decode portfolio data: %w", err)
		}
		p.Data = &decoded
	}
	return p, nil
}

// SetPortfolioStatus upserts the status and error without touching data.
func (s *PortfolioStore) SetPortfolioStatus(
	ctx context.Context,
	userID string,
	status crawler.PortfolioStatus,
	errMsg string,
) error {
	now := s.now()
	query, args, err := psql.Insert("portfolios").
		Columns("user_id", "status", "error", "created_at", "updated_at").
		Values(userID, string(status), errMsg, now, now).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
	status = EXCLUDED.status,
	error = EXCLUDED.error,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set portfolio status: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("set portfolio status: %w", err)
	}
	return nil
}

// SavePortfolio stores generated data and marks the portfolio completed.
func (s *PortfolioStore) SavePortfolio(
	ctx context.Context,
	userID string,
	data crawler.PortfolioData,
	at time.Time,
) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal portfolio: %w", err)
	}
	now := s.now()
	query, args, err := psql.Insert("portfolios").
		Columns("user_id", "status", "error", "data", "last_generated", "created_at", "updated_at").
		Values(userID, string(crawler.PortfolioCompleted), "", string(encoded), at, now, now).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
	status = EXCLUDED.status,
	error = EXCLUDED.error,
	data = EXCLUDED.data,
	last_generated = EXCLUDED.last_generated,
	updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save portfolio: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	return nil
}
