// Package retry runs fallible calls under a hard per-call timeout with a
// bounded number of attempts and a randomized, growing delay between them.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-crawler/internal/crawler"
	"github.com/JakeFAU/profile-crawler/internal/metrics"
)

// Policy bounds a retry chain. Step shifts the delay window upward once per
// failed attempt; CallTimeout caps each individual attempt.
type Policy struct {
	MaxAttempts int
	MinDelay    time.Duration
	MaxDelay    time.Duration
	Step        time.Duration
	CallTimeout time.Duration
}

// Backoff returns the wait after the given failed attempt (1-based). The
// result is uniform in [MinDelay+attempt*Step, MaxDelay+attempt*Step].
func (p Policy) Backoff(attempt int) time.Duration {
	shift := time.Duration(attempt) * p.Step
	lo := p.MinDelay + shift
	hi := p.MaxDelay + shift
	if hi <= lo {
		return lo
	}
	return lo + randomDuration(hi-lo)
}

// MinBackoff is the smallest delay Backoff can return for attempt.
func (p Policy) MinBackoff(attempt int) time.Duration {
	return p.MinDelay + time.Duration(attempt)*p.Step
}

func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)+1))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// ExhaustedError is returned once every attempt has failed.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

// Sleeper waits for d or until ctx ends.
type Sleeper func(ctx context.Context, d time.Duration) error

// Retrier executes operations according to a Policy.
type Retrier struct {
	name      string
	policy    Policy
	sleep     Sleeper
	retryable func(error) bool
	logger    *zap.Logger
}

// Option customizes a Retrier.
type Option func(*Retrier)

// WithSleeper replaces the timer-based sleeper.
func WithSleeper(s Sleeper) Option {
	return func(r *Retrier) { r.sleep = s }
}

// WithRetryable overrides which errors are worth another attempt.
func WithRetryable(fn func(error) bool) Option {
	return func(r *Retrier) { r.retryable = fn }
}

// New builds a Retrier. name labels logs and metrics.
func New(name string, policy Policy, logger *zap.Logger, opts ...Option) *Retrier {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Retrier{
		name:      name,
		policy:    policy,
		sleep:     sleepContext,
		retryable: func(err error) bool { return !crawler.Permanent(err) },
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured policy.
func (r *Retrier) Policy() Policy {
	return r.policy
}

// Do runs op until it succeeds, fails permanently or the attempts run out.
func (r *Retrier) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := Run(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Run is Do for operations that produce a value. A timed-out attempt is
// abandoned; its late result is discarded.
func Run[T any](ctx context.Context, r *Retrier, op func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		result, err := call(ctx, r.policy.CallTimeout, op)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("retry succeeded", zap.String("op", r.name), zap.Int("attempt", attempt))
			}
			return result, nil
		}
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s canceled on attempt %d: %w", r.name, attempt, err)
		}
		if !r.retryable(err) {
			metrics.ObserveRetry(r.name, "permanent")
			return zero, err
		}
		if attempt >= r.policy.MaxAttempts {
			metrics.ObserveRetry(r.name, "exhausted")
			return zero, &ExhaustedError{Attempts: attempt, Err: err}
		}
		delay := r.policy.Backoff(attempt)
		metrics.ObserveRetry(r.name, "retry")
		r.logger.Warn("attempt failed, backing off",
			zap.String("op", r.name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.policy.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("%s backoff: %w", r.name, err)
		}
	}
}

type outcome[T any] struct {
	value T
	err   error
}

func call[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	done := make(chan outcome[T], 1)
	go func() {
		v, err := op(callCtx)
		done <- outcome[T]{value: v, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, fmt.Errorf("call timed out after %s: %w", timeout, callCtx.Err())
		}
		return zero, fmt.Errorf("call aborted: %w", callCtx.Err())
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
