package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

// Aggregator assembles a portfolio from a profile.
type Aggregator interface {
	Build(ctx context.Context, profile crawler.StudentProfile) (crawler.PortfolioData, error)
}

// PortfolioWorker consumes aggregation jobs.
type PortfolioWorker struct {
	queue      crawler.Queue
	profiles   crawler.ProfileStore
	portfolios crawler.PortfolioStore
	builder    Aggregator
	clock      crawler.Clock
	logger     *zap.Logger
}

// NewPortfolioWorker constructs a PortfolioWorker.
func NewPortfolioWorker(
	queue crawler.Queue,
	profiles crawler.ProfileStore,
	portfolios crawler.PortfolioStore,
	builder Aggregator,
	clock crawler.Clock,
	logger *zap.Logger,
) *PortfolioWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PortfolioWorker{
		queue:      queue,
		profiles:   profiles,
		portfolios: portfolios,
		builder:    builder,
		clock:      clock,
		logger:     logger,
	}
}

// Run blocks, consuming aggregation jobs until the context finishes.
func (w *PortfolioWorker) Run(ctx context.Context) {
	metrics.IncActiveWorkers("portfolio")
	defer metrics.DecActiveWorkers("portfolio")
	for {
		delivery, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			backoff(ctx)
			continue
		}
		if !w.Process(ctx, delivery.Body) {
			if err := delivery.Nack(context.WithoutCancel(ctx)); err != nil {
				w.logger.Warn("nack failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
			}
			continue
		}
		if err := delivery.Ack(ctx); err != nil {
			w.logger.Warn("ack failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
		}
	}
}

// Process generates one portfolio. It reports false when the message should
// be redelivered.
func (w *PortfolioWorker) Process(ctx context.Context, body []byte) bool {
	var msg crawler.PortfolioMessage
	if err := json.Unmarshal(body, &msg); err != nil || msg.UserID == "" {
		w.logger.Error("discarding invalid portfolio message", zap.ByteString("body", body), zap.Error(err))
		return true
	}
	logger := w.logger.With(zap.String("user_id", msg.UserID))

	if err := w.portfolios.SetPortfolioStatus(ctx, msg.UserID, crawler.PortfolioGenerating, ""); err != nil {
		logger.Error("mark portfolio generating failed", zap.Error(err))
		return false
	}
	data, err := w.generate(ctx, msg.UserID)
	if err != nil {
		if ctx.Err() != nil {
			logger.Info("portfolio generation interrupted by shutdown", zap.Error(err))
			return false
		}
		logger.Error("portfolio generation failed", zap.Error(err))
		if serr := w.portfolios.SetPortfolioStatus(ctx, msg.UserID, crawler.PortfolioFailed, err.Error()); serr != nil {
			logger.Error("mark portfolio failed failed", zap.Error(serr))
		}
		metrics.ObservePortfolio(string(crawler.PortfolioFailed))
		return true
	}
	if err := w.portfolios.SavePortfolio(ctx, msg.UserID, data, w.clock.Now()); err != nil {
		logger.Error("save portfolio failed", zap.Error(err))
		return false
	}
	metrics.ObservePortfolio(string(crawler.PortfolioCompleted))
	logger.Info("portfolio generated",
		zap.Int("skills", len(data.Skills)),
		zap.Int("projects", len(data.Projects)),
	)
	return true
}

func (w *PortfolioWorker) generate(ctx context.Context, userID string) (crawler.PortfolioData, error) {
	profile, err := w.profiles.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			return crawler.PortfolioData{}, errors.New("profile not found")
		}
		return crawler.PortfolioData{}, fmt.Errorf("load profile: %w", err)
	}
	data, err := w.builder.Build(ctx, profile)
	if err != nil {
		return crawler.PortfolioData{}, fmt.Errorf("build portfolio: %w", err)
	}
	return data, nil
}
