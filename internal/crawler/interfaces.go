package crawler

import (
	"context"
	"encoding/json"
	"time"
)

// JobStore persists crawl job records.
type JobStore interface {
	CreateJob(ctx context.Context, job CrawlJob) error
	GetJob(ctx context.Context, jobID string) (CrawlJob, error)
	ListJobsByProfile(ctx context.Context, profileID string) ([]CrawlJob, error)
	// MarkProcessing moves a queued job to processing and stamps its start time.
	MarkProcessing(ctx context.Context, jobID string, at time.Time) error
	// Finish moves a processing job to a terminal status, appending errs.
	Finish(ctx context.Context, jobID string, status JobStatus, errs []string, at time.Time) error
}

// ProfileURLs carries submitted source locations. Empty fields are left untouched.
type ProfileURLs struct {
	GitHubURL   string
	LinkedInURL string
}

// ProfileStore persists student profiles with per-field updates.
type ProfileStore interface {
	// UpsertURLs creates the profile if needed, sets the non-empty URLs and
	// clears the aggregation guard so a new submission can aggregate again.
	UpsertURLs(ctx context.Context, userID string, urls ProfileURLs) (StudentProfile, error)
	GetProfile(ctx context.Context, userID string) (StudentProfile, error)
	GetProfileByID(ctx context.Context, profileID string) (StudentProfile, error)
	SaveSourceData(ctx context.Context, profileID string, source SourceType, data json.RawMessage) error
	// MarkProcessed sets source's completion flag. It never clears a flag.
	MarkProcessed(ctx context.Context, profileID string, source SourceType) error
	// TryTriggerAggregation flips the aggregation guard false->true and
	// reports whether this caller won the flip.
	TryTriggerAggregation(ctx context.Context, userID string) (bool, error)
	ReleaseAggregation(ctx context.Context, userID string) error
}

// PortfolioStore persists aggregation results.
type PortfolioStore interface {
	GetPortfolio(ctx context.Context, userID string) (Portfolio, error)
	SetPortfolioStatus(ctx context.Context, userID string, status PortfolioStatus, errMsg string) error
	SavePortfolio(ctx context.Context, userID string, data PortfolioData, at time.Time) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Queue is a named, at-least-once work queue.
type Queue interface {
	Enqueue(ctx context.Context, body []byte) error
	Dequeue(ctx context.Context) (Delivery, error)
	Close() error
}

// Extractor collects normalized data for one source location.
type Extractor interface {
	Extract(ctx context.Context, url string) (Extraction, error)
}

// Page is the browser capability extractors drive. The ctx passed to each
// method must be the one handed out by Session.WithPage.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)
	Reload(ctx context.Context) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context, selector string) error
	Scroll(ctx context.Context, deltaY int) error
	MoveMouse(ctx context.Context, x, y float64) error
	Screenshot(ctx context.Context) ([]byte, error)
	Reset(ctx context.Context) error
}

// Session hands out exclusive use of one authenticated page.
type Session interface {
	WithPage(ctx context.Context, fn func(ctx context.Context, page Page) error) error
	Invalidate()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
