// Package coordinator joins the independent source branches of a profile and
// triggers portfolio aggregation exactly once per submission.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

// Outcome is the result of one Join call.
type Outcome string

// Join outcomes.
const (
	OutcomeWaiting   Outcome = "waiting"
	OutcomeFailed    Outcome = "failed"
	OutcomeQueued    Outcome = "queued"
	OutcomeDuplicate Outcome = "duplicate"
)

// NoDataReason is recorded on the portfolio when both branches finished empty.
const NoDataReason = "Unable to generate portfolio: No GitHub or LinkedIn data."

// Coordinator decides, after each source completes, whether aggregation can start.
type Coordinator struct {
	profiles   crawler.ProfileStore
	portfolios crawler.PortfolioStore
	jobs       crawler.JobStore
	queue      crawler.Queue
	logger     *zap.Logger
}

// New constructs a Coordinator that enqueues aggregation jobs on queue.
func New(
	profiles crawler.ProfileStore,
	portfolios crawler.PortfolioStore,
	jobs crawler.JobStore,
	queue crawler.Queue,
	logger *zap.Logger,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		profiles:   profiles,
		portfolios: portfolios,
		jobs:       jobs,
		queue:      queue,
		logger:     logger,
	}
}

// Join inspects userID's profile and triggers aggregation once both sources
// have reported. Safe to call any number of times from concurrent workers.
func (c *Coordinator) Join(ctx context.Context, userID string) (Outcome, error) {
	outcome, err := c.join(ctx, userID)
	if err == nil {
		metrics.ObserveJoin(string(outcome))
	}
	return outcome, err
}

func (c *Coordinator) join(ctx context.Context, userID string) (Outcome, error) {
	profile, err := c.profiles.GetProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if !profile.GitHubProcessed || !profile.LinkedInProcessed {
		return OutcomeWaiting, nil
	}
	pending, err := c.pendingJobs(ctx, profile.ID)
	if err != nil {
		return "", err
	}
	if pending > 0 {
		c.logger.Debug("crawl jobs still in flight", zap.String("user_id", userID), zap.Int("pending", pending))
		return OutcomeWaiting, nil
	}
	if !profile.RawData.Has(crawler.SourceGitHub) && !profile.RawData.Has(crawler.SourceLinkedIn) {
		if err := c.portfolios.SetPortfolioStatus(ctx, userID, crawler.PortfolioFailed, NoDataReason); err != nil {
			return "", fmt.Errorf("record starved portfolio: %w", err)
		}
		c.logger.Warn("no source data to aggregate", zap.String("user_id", userID))
		return OutcomeFailed, nil
	}
	return c.Trigger(ctx, userID)
}

// pendingJobs counts the profile's jobs that have not reached a terminal
// status. The processed flags survive a resubmission, so they alone cannot
// tell whether the latest round of jobs has resolved.
func (c *Coordinator) pendingJobs(ctx context.Context, profileID string) (int, error) {
	jobs, err := c.jobs.ListJobsByProfile(ctx, profileID)
	if err != nil {
		return 0, fmt.Errorf("list crawl jobs: %w", err)
	}
	pending := 0
	for _, job := range jobs {
		if !job.Status.Terminal() {
			pending++
		}
	}
	return pending, nil
}

// Trigger wins the aggregation guard and enqueues the portfolio job. A caller
// that loses the guard gets OutcomeDuplicate with no side effects.
func (c *Coordinator) Trigger(ctx context.Context, userID string) (Outcome, error) {
	won, err := c.profiles.TryTriggerAggregation(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("trigger aggregation: %w", err)
	}
	if !won {
		c.logger.Debug("aggregation already triggered", zap.String("user_id", userID))
		return OutcomeDuplicate, nil
	}
	if err := c.enqueue(ctx, userID); err != nil {
		if rerr := c.profiles.ReleaseAggregation(ctx, userID); rerr != nil {
			c.logger.Error("release aggregation guard failed", zap.String("user_id", userID), zap.Error(rerr))
		}
		return "", err
	}
	c.logger.Info("portfolio aggregation queued", zap.String("user_id", userID))
	return OutcomeQueued, nil
}

func (c *Coordinator) enqueue(ctx context.Context, userID string) error {
	if err := c.portfolios.SetPortfolioStatus(ctx, userID, crawler.PortfolioPending, ""); err != nil {
		return fmt.Errorf("mark portfolio pending: %w", err)
	}
	body, err := json.Marshal(crawler.PortfolioMessage{UserID: userID})
	if err != nil {
		return fmt.Errorf("encode portfolio message: %w", err)
	}
	if err := c.queue.Enqueue(ctx, body); err != nil {
		return fmt.Errorf("enqueue portfolio job: %w", err)
	}
	return nil
}
