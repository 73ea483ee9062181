// Package worker implements the per-source crawl loop and the portfolio
// aggregation loop.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/coordinator"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

const dequeueBackoff = time.Second

// Joiner is notified after a source branch finishes.
type Joiner interface {
	Join(ctx context.Context, userID string) (coordinator.Outcome, error)
}

// Worker consumes one source queue and runs its extractor.
type Worker struct {
	source    crawler.SourceType
	queue     crawler.Queue
	extractor crawler.Extractor
	jobs      crawler.JobStore
	profiles  crawler.ProfileStore
	joiner    Joiner
	session   crawler.Session
	clock     crawler.Clock
	logger    *zap.Logger
}

// New constructs a Worker for source. session may be nil for extractors that
// do not drive a browser.
func New(
	source crawler.SourceType,
	queue crawler.Queue,
	extractor crawler.Extractor,
	jobs crawler.JobStore,
	profiles crawler.ProfileStore,
	joiner Joiner,
	session crawler.Session,
	clock crawler.Clock,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		source:    source,
		queue:     queue,
		extractor: extractor,
		jobs:      jobs,
		profiles:  profiles,
		joiner:    joiner,
		session:   session,
		clock:     clock,
		logger:    logger.With(zap.String("source", string(source))),
	}
}

// Run blocks, consuming queue items until the context finishes.
func (w *Worker) Run(ctx context.Context) {
	metrics.IncActiveWorkers(string(w.source))
	defer metrics.DecActiveWorkers(string(w.source))
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
		w.handle(ctx, delivery)
	}
}

func (w *Worker) handle(ctx context.Context, delivery crawler.Delivery) {
	if w.Process(ctx, delivery.Body) {
		if err := delivery.Ack(ctx); err != nil {
			w.logger.Warn("ack failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
		}
		return
	}
	if err := delivery.Nack(context.WithoutCancel(ctx)); err != nil {
		w.logger.Warn("nack failed", zap.String("delivery_id", delivery.ID), zap.Error(err))
	}
}

// Process runs one crawl message to completion. It reports false when the
// message should be redelivered.
func (w *Worker) Process(ctx context.Context, body []byte) bool {
	var msg crawler.CrawlMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error("discarding undecodable message", zap.Error(err))
		return true
	}
	logger := w.logger.With(zap.String("job_id", msg.CrawlJobID), zap.String("profile_id", msg.StudentProfileID))
	url := msg.URL(w.source)
	if missing := missingFields(msg, url); len(missing) > 0 {
		logger.Warn("invalid crawl message", zap.Strings("missing", missing))
		if msg.CrawlJobID != "" {
			return w.failJob(ctx, logger, msg.CrawlJobID, "invalid message: missing "+strings.Join(missing, ", ")) == nil
		}
		return true
	}

	job, err := w.jobs.GetJob(ctx, msg.CrawlJobID)
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		logger.Warn("crawl job not found")
		return true
	case err != nil:
		logger.Error("load crawl job failed", zap.Error(err))
		return false
	case job.Status.Terminal():
		logger.Debug("skipping finished job", zap.String("status", string(job.Status)))
		return true
	case job.Status == crawler.JobStatusQueued:
		if err := w.jobs.MarkProcessing(ctx, job.ID, w.clock.Now()); err != nil {
			logger.Error("mark job processing failed", zap.Error(err))
			return errors.Is(err, crawler.ErrInvalidTransition)
		}
	}

	profile, err := w.profiles.GetProfileByID(ctx, msg.StudentProfileID)
	if err != nil {
		if errors.Is(err, crawler.ErrNotFound) {
			return w.finish(ctx, logger, job.ID, crawler.JobStatusFailed, []string{"student profile not found"}) == nil
		}
		logger.Error("load profile failed", zap.Error(err))
		return false
	}

	start := w.clock.Now()
	extraction, extractErr := w.extractor.Extract(ctx, url)
	metrics.ObserveExtraction(string(w.source), since(w.clock, start))
	if extractErr != nil && ctx.Err() != nil {
		logger.Info("extraction interrupted by shutdown", zap.Error(extractErr))
		return false
	}

	if errors.Is(extractErr, crawler.ErrAuthentication) {
		logger.Error("authentication failed, invalidating session", zap.Error(extractErr))
		if w.session != nil {
			w.session.Invalidate()
		}
		return w.finish(ctx, logger, job.ID, crawler.JobStatusFailed, []string{extractErr.Error()}) == nil
	}

	messages := append([]string(nil), extraction.Warnings...)
	saved := false
	if extractErr != nil {
		logger.Warn("extraction failed", zap.Error(extractErr))
		messages = append(messages, extractErr.Error())
	} else if extraction.Data == nil {
		messages = append(messages, "no data extracted")
	} else if err := w.save(ctx, profile.ID, extraction.Data); err != nil {
		logger.Error("save source data failed", zap.Error(err))
		messages = append(messages, err.Error())
	} else {
		saved = true
	}

	if err := w.finish(ctx, logger, job.ID, deriveStatus(saved, messages), messages); err != nil {
		return false
	}
	if err := w.profiles.MarkProcessed(ctx, profile.ID, w.source); err != nil {
		logger.Error("mark source processed failed", zap.Error(err))
		return true
	}
	outcome, err := w.joiner.Join(ctx, profile.UserID)
	if err != nil {
		logger.Error("join failed", zap.String("user_id", profile.UserID), zap.Error(err))
		return true
	}
	logger.Info("crawl job finished", zap.String("user_id", profile.UserID), zap.String("join", string(outcome)))
	return true
}

func (w *Worker) save(ctx context.Context, profileID string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s data: %w", w.source, err)
	}
	if err := w.profiles.SaveSourceData(ctx, profileID, w.source, raw); err != nil {
		return fmt.Errorf("save %s data: %w", w.source, err)
	}
	return nil
}

func (w *Worker) failJob(ctx context.Context, logger *zap.Logger, jobID, reason string) error {
	err := w.jobs.MarkProcessing(ctx, jobID, w.clock.Now())
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		logger.Warn("crawl job not found")
		return nil
	case err != nil && !errors.Is(err, crawler.ErrInvalidTransition):
		logger.Error("mark job processing failed", zap.Error(err))
		return err
	}
	return w.finish(ctx, logger, jobID, crawler.JobStatusFailed, []string{reason})
}

// finish records the terminal status. It returns an error only when the
// update may succeed on a later delivery; a job that is gone or already
// terminal needs no retry.
func (w *Worker) finish(ctx context.Context, logger *zap.Logger, jobID string, status crawler.JobStatus, messages []string) error {
	err := w.jobs.Finish(ctx, jobID, status, messages, w.clock.Now())
	switch {
	case err == nil:
		metrics.ObserveJob(string(w.source), string(status))
		return nil
	case errors.Is(err, crawler.ErrInvalidTransition), errors.Is(err, crawler.ErrNotFound):
		logger.Warn("job not finishable", zap.Error(err))
		return nil
	default:
		logger.Error("final job status update failed", zap.Error(err))
		return err
	}
}

// backoff pauses after a failed dequeue so a broken queue does not spin.
func backoff(ctx context.Context) {
	t := time.NewTimer(dequeueBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func deriveStatus(saved bool, messages []string) crawler.JobStatus {
	switch {
	case !saved:
		return crawler.JobStatusFailed
	case len(messages) > 0:
		return crawler.JobStatusPartial
	default:
		return crawler.JobStatusCompleted
	}
}

func missingFields(msg crawler.CrawlMessage, url string) []string {
	var missing []string
	if msg.StudentProfileID == "" {
		missing = append(missing, "studentProfileId")
	}
	if url == "" {
		missing = append(missing, "url")
	}
	if msg.CrawlJobID == "" {
		missing = append(missing, "crawlJobId")
	}
	return missing
}

func since(clock crawler.Clock, start time.Time) time.Duration {
	return clock.Now().Sub(start)
}
