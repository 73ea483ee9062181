package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

func newJobStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewJobStore(mock)
	require.NoError(t, err)
	return store, mock
}

func TestCreateJobInsertsQueuedRow(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	mock.ExpectExec("INSERT INTO crawl_jobs").
		WithArgs("job-1", "profile-1", "github", "queued", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := store.CreateJob(context.Background(), crawler.CrawlJob{
		ID:               "job-1",
		StudentProfileID: "profile-1",
		SourceType:       crawler.SourceGitHub,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobMapsNoRows(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	mock.ExpectQuery("SELECT .* FROM crawl_jobs WHERE id = \\$1").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetJob(context.Background(), "missing")
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobScansRow(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	start := time.Unix(1700000000, 0).UTC()
	done := start.Add(time.Minute)
	rows := pgxmock.NewRows(jobColumns).
		AddRow("job-1", "profile-1", "linkedin", "partial", []string{"missing name"}, &start, &done, start, done)
	mock.ExpectQuery("SELECT .* FROM crawl_jobs").WithArgs("job-1").WillReturnRows(rows)

	job, err := store.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, crawler.SourceLinkedIn, job.SourceType)
	require.Equal(t, crawler.JobStatusPartial, job.Status)
	require.Equal(t, []string{"missing name"}, job.ErrorMessages)
	require.Equal(t, start, *job.StartTime)
	require.Equal(t, done, *job.CompletionTime)
}

func TestListJobsByProfile(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows(jobColumns).
		AddRow("job-1", "profile-1", "github", "completed", []string{}, &now, &now, now, now).
		AddRow("job-2", "profile-1", "linkedin", "failed", []string{"challenge"}, &now, &now, now, now)
	mock.ExpectQuery("SELECT .* FROM crawl_jobs WHERE student_profile_id = \\$1 ORDER BY created_at ASC").
		WithArgs("profile-1").
		WillReturnRows(rows)

	jobs, err := store.ListJobsByProfile(context.Background(), "profile-1")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, crawler.JobStatusFailed, jobs[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessingGuardsOnQueued(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE crawl_jobs SET status = $1, start_time = COALESCE(start_time, $2)")).
		WithArgs("processing", at, pgxmock.AnyArg(), "job-1", "queued").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.MarkProcessing(context.Background(), "job-1", at))

	mock.ExpectExec("UPDATE crawl_jobs").
		WithArgs("processing", at, pgxmock.AnyArg(), "job-1", "queued").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM crawl_jobs WHERE id = $1")).
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow("completed"))
	err := store.MarkProcessing(context.Background(), "job-1", at)
	require.ErrorIs(t, err, crawler.ErrInvalidTransition)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinishAppendsErrors(t *testing.T) {
	t.Parallel()

	store, mock := newJobStore(t)
	at := time.Unix(1700000000, 0).UTC()
	mock.ExpectExec(regexp.QuoteMeta("error_messages = array_cat(error_messages, $2::text[])")).
		WithArgs("partial", []string{"no skills"}, at, pgxmock.AnyArg(), "job-1", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.Finish(context.Background(), "job-1", crawler.JobStatusPartial, []string{"no skills"}, at))

	err := store.Finish(context.Background(), "job-1", crawler.JobStatusProcessing, nil, at)
	require.ErrorIs(t, err, crawler.ErrInvalidTransition)

	mock.ExpectExec("UPDATE crawl_jobs").
		WithArgs("failed", []string{}, at, pgxmock.AnyArg(), "gone", "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM crawl_jobs").
		WithArgs("gone").
		WillReturnError(pgx.ErrNoRows)
	err = store.Finish(context.Background(), "gone", crawler.JobStatusFailed, nil, at)
	require.ErrorIs(t, err, crawler.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplySchema(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS student_profiles").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, ApplySchema(context.Background(), mock))
	require.NoError(t, mock.ExpectationsWereMet())
}
