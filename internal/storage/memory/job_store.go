package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

// JobStore is an in-memory crawler.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawler.CrawlJob
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]crawler.CrawlJob),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job in queued status.
func (s *JobStore) CreateJob(_ context.Context, job crawler.CrawlJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := s.now()
	job.Status = crawler.JobStatusQueued
	job.ErrorMessages = []string{}
	job.StartTime = nil
	job.CompletionTime = nil
	job.CreatedAt = now
	job.UpdatedAt = now
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.CrawlJob{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	return cloneJob(job), nil
}

// ListJobsByProfile returns a profile's jobs, oldest first.
func (s *JobStore) ListJobsByProfile(_ context.Context, profileID string) ([]crawler.CrawlJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []crawler.CrawlJob
	for _, job := range s.jobs {
		if job.StudentProfileID == profileID {
			out = append(out, cloneJob(job))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// MarkProcessing moves a queued job to processing.
func (s *JobStore) MarkProcessing(_ context.Context, jobID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	if job.Status != crawler.JobStatusQueued {
		return fmt.Errorf("job %s %s -> %s: %w",
			jobID, job.Status, crawler.JobStatusProcessing, crawler.ErrInvalidTransition)
	}
	job.Status = crawler.JobStatusProcessing
	if job.StartTime == nil {
		job.StartTime = pointerTime(at)
	}
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return nil
}

// Finish moves a processing job to a terminal status and appends errs.
func (s *JobStore) Finish(
	_ context.Context,
	jobID string,
	status crawler.JobStatus,
	errs []string,
	at time.Time,
) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job %s with %s: %w", jobID, status, crawler.ErrInvalidTransition)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
	}
	if job.Status != crawler.JobStatusProcessing {
		return fmt.Errorf("job %s %s -> %s: %w", jobID, job.Status, status, crawler.ErrInvalidTransition)
	}
	job.Status = status
	job.ErrorMessages = append(job.ErrorMessages, errs...)
	if job.CompletionTime == nil {
		job.CompletionTime = pointerTime(at)
	}
	job.UpdatedAt = s.now()
	s.jobs[jobID] = job
	return nil
}

func cloneJob(job crawler.CrawlJob) crawler.CrawlJob {
	job.ErrorMessages = append([]string{}, job.ErrorMessages...)
	if job.StartTime != nil {
		job.StartTime = pointerTime(*job.StartTime)
	}
	if job.CompletionTime != nil {
		job.CompletionTime = pointerTime(*job.CompletionTime)
	}
	return job
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
