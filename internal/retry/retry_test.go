package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
)

type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return nil
}

func (s *recordingSleeper) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.delays {
		sum += d
	}
	return sum
}

type flakyExtractor struct {
	mu       sync.Mutex
	fails    int
	attempts int
	err      error
}

func (f *flakyExtractor) Extract(_ context.Context, url string) (crawler.Extraction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.attempts <= f.fails {
		if f.err != nil {
			return crawler.Extraction{}, f.err
		}
		return crawler.Extraction{}, fmt.Errorf("navigation failed on %s", url)
	}
	return crawler.Extraction{Data: map[string]string{"name": "Ada"}}, nil
}

func testPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		MinDelay:    800 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Step:        time.Second,
		CallTimeout: time.Second,
	}
}

func TestPolicyBackoffWindowGrowsPerAttempt(t *testing.T) {
	t.Parallel()

	p := testPolicy()
	for attempt := 1; attempt <= 3; attempt++ {
		lo := p.MinDelay + time.Duration(attempt)*p.Step
		hi := p.MaxDelay + time.Duration(attempt)*p.Step
		for i := 0; i < 50; i++ {
			d := p.Backoff(attempt)
			require.GreaterOrEqual(t, d, lo)
			require.LessOrEqual(t, d, hi)
		}
		require.Equal(t, lo, p.MinBackoff(attempt))
	}
}

func TestPolicyBackoffCollapsedWindow(t *testing.T) {
	t.Parallel()

	p := Policy{MinDelay: time.Second, MaxDelay: 500 * time.Millisecond}
	require.Equal(t, time.Second, p.Backoff(0))
}

func TestExtractorSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	inner := &flakyExtractor{fails: 3}
	r := New("linkedin", testPolicy(), zap.NewNop(), WithSleeper(sleeper.sleep))

	res, err := WrapExtractor(inner, r).Extract(context.Background(), "https://linkedin.com/in/ada")

	require.NoError(t, err)
	require.Equal(t, map[string]string{"name": "Ada"}, res.Data)
	require.Empty(t, res.Warnings)
	require.Equal(t, 4, inner.attempts)
	require.Len(t, sleeper.delays, 3)
}

func TestRunAlwaysTimingOutExhaustsAttempts(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	policy.MaxAttempts = 3
	policy.CallTimeout = 20 * time.Millisecond
	sleeper := &recordingSleeper{}
	r := New("linkedin", policy, zap.NewNop(), WithSleeper(sleeper.sleep))

	var mu sync.Mutex
	calls := 0
	_, err := Run(context.Background(), r, func(ctx context.Context) (string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-ctx.Done()
		return "", ctx.Err()
	})

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Contains(t, err.Error(), "after 3 attempts")
	mu.Lock()
	require.Equal(t, 3, calls)
	mu.Unlock()

	floor := policy.MinBackoff(1) + policy.MinBackoff(2)
	require.GreaterOrEqual(t, sleeper.total(), floor)
}

func TestRunDoesNotRetryAuthenticationFailure(t *testing.T) {
	t.Parallel()

	sleeper := &recordingSleeper{}
	inner := &flakyExtractor{fails: 10, err: fmt.Errorf("login: %w", crawler.ErrAuthentication)}
	r := New("linkedin", testPolicy(), zap.NewNop(), WithSleeper(sleeper.sleep))

	_, err := WrapExtractor(inner, r).Extract(context.Background(), "https://linkedin.com/in/ada")

	require.ErrorIs(t, err, crawler.ErrAuthentication)
	var exhausted *ExhaustedError
	require.False(t, errors.As(err, &exhausted))
	require.Equal(t, 1, inner.attempts)
	require.Empty(t, sleeper.delays)
}

func TestRunStopsOnChallenge(t *testing.T) {
	t.Parallel()

	inner := &flakyExtractor{fails: 10, err: crawler.ErrChallenge}
	r := New("linkedin", testPolicy(), zap.NewNop(), WithSleeper((&recordingSleeper{}).sleep))

	_, err := WrapExtractor(inner, r).Extract(context.Background(), "https://linkedin.com/in/ada")

	require.ErrorIs(t, err, crawler.ErrChallenge)
	require.Equal(t, 1, inner.attempts)
}

func TestRunHonorsParentCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	r := New("github", testPolicy(), zap.NewNop())
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Do(ctx, func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		})
	}()
	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
}

func TestDefaultSleeperWaits(t *testing.T) {
	t.Parallel()

	start := time.Now()
	require.NoError(t, sleepContext(context.Background(), 15*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, sleepContext(ctx, time.Hour))
}
