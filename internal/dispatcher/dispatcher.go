// Package dispatcher accepts profile submissions, fans them out to the source
// queues and runs the worker pools that drain them.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/coordinator"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/queue"
)

// Runner is a blocking worker loop.
type Runner interface {
	Run(ctx context.Context)
}

// Trigger starts aggregation for a user whose sources have all reported.
type Trigger interface {
	Trigger(ctx context.Context, userID string) (coordinator.Outcome, error)
}

// SubmitRequest is one user's set of source locations. At least one URL is
// required and each must point at its own site.
type SubmitRequest struct {
	UserID      string `json:"userId"      validate:"required,max=128"`
	GitHubURL   string `json:"githubUrl"   validate:"omitempty,sitehost=github.com"`
	LinkedInURL string `json:"linkedinUrl" validate:"omitempty,sitehost=linkedin.com"`
}

// Dispatcher fans submissions out to the source queues.
type Dispatcher struct {
	queues   queue.Set
	jobs     crawler.JobStore
	profiles crawler.ProfileStore
	trigger  Trigger
	ids      crawler.IDGenerator
	clock    crawler.Clock
	runners  []Runner
	validate *validator.Validate
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(
	queues queue.Set,
	jobs crawler.JobStore,
	profiles crawler.ProfileStore,
	trigger Trigger,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	runners []Runner,
	logger *zap.Logger,
) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queues:   queues,
		jobs:     jobs,
		profiles: profiles,
		trigger:  trigger,
		ids:      ids,
		clock:    clock,
		runners:  runners,
		validate: newValidator(),
		logger:   logger,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("sitehost", func(fl validator.FieldLevel) bool {
		return hostMatches(fl.Field().String(), fl.Param())
	})
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		req := sl.Current().Interface().(SubmitRequest)
		if req.GitHubURL == "" && req.LinkedInURL == "" {
			sl.ReportError(req.GitHubURL, "GitHubURL", "githubUrl", "anyurl", "")
		}
	}, SubmitRequest{})
	return v
}

// hostMatches reports whether raw, with or without a scheme, is served by
// site or one of its subdomains.
func hostMatches(raw, site string) bool {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == site || strings.HasSuffix(host, "."+site)
}

// Run starts all runners and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, r := range d.runners {
		wg.Add(1)
		go func(r Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(r)
	}
	<-ctx.Done()
	wg.Wait()
}

// Submit records the URLs on the user's profile and queues one crawl job per
// provided source.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) ([]crawler.CrawlJob, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.GitHubURL = strings.TrimSpace(req.GitHubURL)
	req.LinkedInURL = strings.TrimSpace(req.LinkedInURL)
	if err := d.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	profile, err := d.profiles.UpsertURLs(ctx, req.UserID, crawler.ProfileURLs{
		GitHubURL:   req.GitHubURL,
		LinkedInURL: req.LinkedInURL,
	})
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}

	var jobs []crawler.CrawlJob
	for _, src := range []struct {
		source crawler.SourceType
		url    string
	}{
		{crawler.SourceGitHub, req.GitHubURL},
		{crawler.SourceLinkedIn, req.LinkedInURL},
	} {
		if src.url == "" {
			continue
		}
		job, err := d.enqueue(ctx, profile.ID, src.source, src.url)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}
	d.logger.Info("profile submitted",
		zap.String("user_id", req.UserID),
		zap.String("profile_id", profile.ID),
		zap.Int("jobs", len(jobs)),
	)
	return jobs, nil
}

func (d *Dispatcher) enqueue(
	ctx context.Context,
	profileID string,
	source crawler.SourceType,
	sourceURL string,
) (crawler.CrawlJob, error) {
	q := d.queues.ForSource(source)
	if q == nil {
		return crawler.CrawlJob{}, fmt.Errorf("no queue configured for %s", source)
	}
	id, err := d.ids.NewID()
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("generate job id: %w", err)
	}
	now := d.clock.Now()
	job := crawler.CrawlJob{
		ID:               id,
		StudentProfileID: profileID,
		SourceType:       source,
		Status:           crawler.JobStatusQueued,
		ErrorMessages:    []string{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := d.jobs.CreateJob(ctx, job); err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("create %s job: %w", source, err)
	}
	body, err := json.Marshal(crawler.NewCrawlMessage(source, profileID, id, sourceURL))
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("encode %s message: %w", source, err)
	}
	if err := q.Enqueue(ctx, body); err != nil {
		d.abandon(ctx, id, err)
		return crawler.CrawlJob{}, fmt.Errorf("queue enqueue: %w", err)
	}
	return job, nil
}

// abandon fails a job whose message never reached the queue.
func (d *Dispatcher) abandon(ctx context.Context, jobID string, cause error) {
	now := d.clock.Now()
	if err := d.jobs.MarkProcessing(ctx, jobID, now); err != nil {
		d.logger.Warn("abandon job failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if err := d.jobs.Finish(ctx, jobID, crawler.JobStatusFailed, []string{"enqueue failed: " + cause.Error()}, now); err != nil {
		d.logger.Warn("abandon job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Regenerate queues a fresh aggregation for a user whose crawl has finished.
func (d *Dispatcher) Regenerate(ctx context.Context, userID string) (coordinator.Outcome, error) {
	profile, err := d.profiles.GetProfile(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("load profile: %w", err)
	}
	if !profile.GitHubProcessed || !profile.LinkedInProcessed {
		return "", fmt.Errorf("crawling is not complete: %w", crawler.ErrValidation)
	}
	if !profile.RawData.Has(crawler.SourceGitHub) && !profile.RawData.Has(crawler.SourceLinkedIn) {
		return "", fmt.Errorf("no crawled data to aggregate: %w", crawler.ErrValidation)
	}
	if err := d.profiles.ReleaseAggregation(ctx, userID); err != nil {
		return "", fmt.Errorf("reset aggregation guard: %w", err)
	}
	outcome, err := d.trigger.Trigger(ctx, userID)
	if err != nil {
		return "", err
	}
	d.logger.Info("portfolio regeneration requested", zap.String("user_id", userID), zap.String("outcome", string(outcome)))
	return outcome, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", crawler.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if msg := fieldMessage(fe); !slices.Contains(msgs, msg) {
			msgs = append(msgs, msg)
		}
	}
	return fmt.Errorf("%w: %s", crawler.ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "anyurl":
		return "at least one of GitHubURL or LinkedInURL is required"
	case "sitehost":
		return fmt.Sprintf("%s must be a %s URL", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
