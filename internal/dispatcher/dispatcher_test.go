package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/coordinator"
	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/queue"
	memqueue "github.com/JakeFAU/profile-crawler/internal/queue/memory"
	"github.com/JakeFAU/profile-crawler/internal/storage/memory"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("id-%d", s.n.Add(1)), nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type blockingRunner struct {
	started chan struct{}
}

func (r *blockingRunner) Run(ctx context.Context) {
	r.started <- struct{}{}
	<-ctx.Done()
}

type errorQueue struct {
	err error
}

func (q *errorQueue) Enqueue(context.Context, []byte) error { return q.err }

func (q *errorQueue) Dequeue(ctx context.Context) (crawler.Delivery, error) {
	<-ctx.Done()
	return crawler.Delivery{}, ctx.Err()
}

func (q *errorQueue) Close() error { return nil }

type harness struct {
	queues     queue.Set
	github     *memqueue.Queue
	linkedin   *memqueue.Queue
	portfolio  *memqueue.Queue
	jobs       *memory.JobStore
	profiles   *memory.ProfileStore
	portfolios *memory.PortfolioStore
	dispatch   *Dispatcher
}

func newHarness(runners ...Runner) *harness {
	h := &harness{
		github:     memqueue.NewQueue(8),
		linkedin:   memqueue.NewQueue(8),
		portfolio:  memqueue.NewQueue(8),
		jobs:       memory.NewJobStore(),
		profiles:   memory.NewProfileStore(&seqIDs{}),
		portfolios: memory.NewPortfolioStore(),
	}
	h.queues = queue.Set{GitHub: h.github, LinkedIn: h.linkedin, Portfolio: h.portfolio}
	coord := coordinator.New(h.profiles, h.portfolios, h.jobs, h.portfolio, zap.NewNop())
	h.dispatch = New(h.queues, h.jobs, h.profiles, coord, &seqIDs{}, fixedClock{now: time.Unix(100, 0).UTC()}, runners, zap.NewNop())
	return h
}

func TestDispatcherRunStartsRunners(t *testing.T) {
	t.Parallel()

	runner := &blockingRunner{started: make(chan struct{}, 2)}
	h := newHarness(runner, runner)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.dispatch.Run(ctx)
		close(done)
	}()

	for range 2 {
		select {
		case <-runner.started:
		case <-time.After(time.Second):
			t.Fatal("runner did not start")
		}
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop after context cancel")
	}
}

func TestSubmitQueuesOneJobPerSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	jobs, err := h.dispatch.Submit(ctx, SubmitRequest{
		UserID:      "user-1",
		GitHubURL:   " https://github.com/octo ",
		LinkedInURL: "linkedin.com/in/octo",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	require.Equal(t, crawler.SourceGitHub, jobs[0].SourceType)
	require.Equal(t, crawler.SourceLinkedIn, jobs[1].SourceType)
	for _, job := range jobs {
		stored, err := h.jobs.GetJob(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, crawler.JobStatusQueued, stored.Status)
	}

	profile, err := h.profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, "https://github.com/octo", profile.GitHubURL)
	require.Equal(t, jobs[0].StudentProfileID, profile.ID)

	require.Equal(t, 1, h.github.Len())
	require.Equal(t, 1, h.linkedin.Len())
	delivery, err := h.github.Dequeue(ctx)
	require.NoError(t, err)
	var msg crawler.CrawlMessage
	require.NoError(t, json.Unmarshal(delivery.Body, &msg))
	require.Equal(t, crawler.CrawlMessage{
		StudentProfileID: profile.ID,
		GitHubURL:        "https://github.com/octo",
		CrawlJobID:       jobs[0].ID,
	}, msg)
}

func TestSubmitGitHubOnly(t *testing.T) {
	t.Parallel()

	h := newHarness()
	jobs, err := h.dispatch.Submit(context.Background(), SubmitRequest{
		UserID:    "user-1",
		GitHubURL: "https://www.github.com/octo",
	})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, 0, h.linkedin.Len())
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  SubmitRequest
		msg  string
	}{
		{
			name: "no urls",
			req:  SubmitRequest{UserID: "user-1"},
			msg:  "at least one of GitHubURL or LinkedInURL is required",
		},
		{
			name: "no user",
			req:  SubmitRequest{GitHubURL: "https://github.com/octo"},
			msg:  "UserID is required",
		},
		{
			name: "wrong github host",
			req:  SubmitRequest{UserID: "user-1", GitHubURL: "https://gitlab.com/octo"},
			msg:  "GitHubURL must be a github.com URL",
		},
		{
			name: "lookalike linkedin host",
			req:  SubmitRequest{UserID: "user-1", LinkedInURL: "https://notlinkedin.com/in/octo"},
			msg:  "LinkedInURL must be a linkedin.com URL",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness()
			_, err := h.dispatch.Submit(context.Background(), tc.req)
			require.ErrorIs(t, err, crawler.ErrValidation)
			require.ErrorContains(t, err, tc.msg)
			require.Equal(t, 0, h.github.Len())
		})
	}
}

func TestSubmitEnqueueFailureFailsJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()
	h.dispatch.queues.GitHub = &errorQueue{err: errors.New("boom")}

	_, err := h.dispatch.Submit(ctx, SubmitRequest{UserID: "user-1", GitHubURL: "https://github.com/octo"})
	require.EqualError(t, err, "queue enqueue: boom")

	profile, err := h.profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	jobs, err := h.jobs.ListJobsByProfile(ctx, profile.ID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, crawler.JobStatusFailed, jobs[0].Status)
	require.Equal(t, []string{"enqueue failed: boom"}, jobs[0].ErrorMessages)
}

func TestRegenerate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	h := newHarness()

	_, err := h.dispatch.Regenerate(ctx, "nobody")
	require.ErrorIs(t, err, crawler.ErrNotFound)

	_, err = h.dispatch.Submit(ctx, SubmitRequest{
		UserID:      "user-1",
		GitHubURL:   "https://github.com/octo",
		LinkedInURL: "https://www.linkedin.com/in/octo",
	})
	require.NoError(t, err)
	profile, err := h.profiles.GetProfile(ctx, "user-1")
	require.NoError(t, err)

	_, err = h.dispatch.Regenerate(ctx, "user-1")
	require.ErrorIs(t, err, crawler.ErrValidation)

	require.NoError(t, h.profiles.SaveSourceData(ctx, profile.ID, crawler.SourceGitHub, json.RawMessage(`{"username":"octo"}`)))
	require.NoError(t, h.profiles.MarkProcessed(ctx, profile.ID, crawler.SourceGitHub))
	require.NoError(t, h.profiles.MarkProcessed(ctx, profile.ID, crawler.SourceLinkedIn))
	_, err = h.profiles.TryTriggerAggregation(ctx, "user-1")
	require.NoError(t, err)

	outcome, err := h.dispatch.Regenerate(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, coordinator.OutcomeQueued, outcome)
	require.Equal(t, 1, h.portfolio.Len())

	portfolio, err := h.portfolios.GetPortfolio(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, crawler.PortfolioPending, portfolio.Status)
}

func TestHostMatches(t *testing.T) {
	t.Parallel()

	require.True(t, hostMatches("github.com/octo", "github.com"))
	require.True(t, hostMatches("https://www.linkedin.com/in/octo", "linkedin.com"))
	require.False(t, hostMatches("https://github.com.evil.io/octo", "github.com"))
	require.False(t, hostMatches("::::", "github.com"))
}
