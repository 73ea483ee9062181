package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

var jobColumns = []string{
	"id",
	"student_profile_id",
	"source_type",
	"status",
	"error_messages",
	"start_time",
	"completion_time",
	"created_at",
	"updated_at",
}

// JobStore persists crawl jobs in the crawl_jobs table.
type JobStore struct {
	db  querier
	now func() time.Time
}

// NewJobStore constructs a JobStore on db.
func NewJobStore(db querier) (*JobStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{db: db, now: utcNow}, nil
}

// CreateJob inserts a job in queued status.
func (s *JobStore) CreateJob(ctx context.Context, job crawler.CrawlJob) error {
	if job.ID == "" {
		return fmt.Errorf("job id is required")
	}
	now := s.now()
	query, args, err := psql.Insert("crawl_jobs").
		Columns("id", "student_profile_id", "source_type", "status", "created_at", "updated_at").
		Values(job.ID, job.StudentProfileID, string(job.SourceType), string(crawler.JobStatusQueued), now, now).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert job: %w", err)
	}
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob loads one job.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (crawler.CrawlJob, error) {
	query, args, err := psql.Select(jobColumns...).
		From("crawl_jobs").
		Where(sq.Eq{"id": jobID}).
		ToSql()
	if err != nil {
		return crawler.CrawlJob{}, fmt.Errorf("build select job: %w", err)
	}
	job, err := scanJob(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return crawler.CrawlJob{}, fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
		}
		return crawler.CrawlJob{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobsByProfile returns a profile's jobs, oldest first.
func (s *JobStore) ListJobsByProfile(ctx context.Context, profileID string) ([]crawler.CrawlJob, error) {
	query, args, err := psql.Select(jobColumns...).
		From("crawl_jobs").
		Where(sq.Eq{"student_profile_id": profileID}).
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list jobs: %w", err)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]crawler.CrawlJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job rows: %w", err)
	}
	return jobs, nil
}

// MarkProcessing moves a queued job to processing. The start time is kept if
// already set.
func (s *JobStore) MarkProcessing(ctx context.Context, jobID string, at time.Time) error {
	query, args, err := psql.Update("crawl_jobs").
		Set("status", string(crawler.JobStatusProcessing)).
		Set("start_time", sq.Expr("COALESCE(start_time, ?)", at)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": jobID, "status": string(crawler.JobStatusQueued)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark processing: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, jobID, crawler.JobStatusProcessing)
	}
	return nil
}

// Finish moves a processing job to a terminal status and appends errs.
func (s *JobStore) Finish(
	ctx context.Context,
	jobID string,
	status crawler.JobStatus,
	errs []string,
	at time.Time,
) error {
	if !status.Terminal() {
		return fmt.Errorf("finish job %s with %s: %w", jobID, status, crawler.ErrInvalidTransition)
	}
	if errs == nil {
		errs = []string{}
	}
	query, args, err := psql.Update("crawl_jobs").
		Set("status", string(status)).
		Set("error_messages", sq.Expr("array_cat(error_messages, ?::text[])", errs)).
		Set("completion_time", sq.Expr("COALESCE(completion_time, ?)", at)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": jobID, "status": string(crawler.JobStatusProcessing)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish job: %w", err)
	}
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionError(ctx, jobID, status)
	}
	return nil
}

func (s *JobStore) transitionError(ctx context.Context, jobID string, to crawler.JobStatus) error {
	var current string
	err := s.db.QueryRow(ctx, "SELECT status FROM crawl_jobs WHERE id = $1", jobID).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("job %s: %w", jobID, crawler.ErrNotFound)
		}
		return fmt.Errorf("load job status: %w", err)
	}
	return fmt.Errorf("job %s %s -> %s: %w", jobID, current, to, crawler.ErrInvalidTransition)
}

func scanJob(row pgx.Row) (crawler.CrawlJob, error) {
	var (
		job    crawler.CrawlJob
		source string
		status string
	)
	err := row.Scan(
		&job.ID,
		&job.StudentProfileID,
		&source,
		&status,
		&job.ErrorMessages,
		&job.StartTime,
		&job.CompletionTime,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return crawler.CrawlJob{}, err
	}
	job.SourceType = crawler.SourceType(source)
	job.Status = crawler.JobStatus(status)
	return job, nil
}
