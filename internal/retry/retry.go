// Package retry re-invokes a failing action with exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kuitang/e2ekit/internal/clock"
	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/obs"
)

// Policy bounds a retried action.
type Policy struct {
	MaxAttempts   int           // total invocations, at least 1
	InitialDelay  time.Duration // delay after the first failure
	BackoffFactor float64       // multiplier applied per further failure, at least 1
}

// DefaultPolicy is three attempts, sleeping 1s then 2s between them.
var DefaultPolicy = Policy{
	MaxAttempts:   3,
	InitialDelay:  time.Second,
	BackoffFactor: 2,
}

// Validate reports a configuration error for an unusable policy.
func (p Policy) Validate() error {
	var problems []error
	if p.MaxAttempts < 1 {
		problems = append(problems, fmt.Errorf("max attempts must be at least 1, got %d", p.MaxAttempts))
	}
	if p.InitialDelay < 0 {
		problems = append(problems, fmt.Errorf("initial delay must not be negative, got %s", p.InitialDelay))
	}
	if p.BackoffFactor < 1 || math.IsNaN(p.BackoffFactor) || math.IsInf(p.BackoffFactor, 0) {
		problems = append(problems, fmt.Errorf("backoff factor must be a finite number >= 1, got %v", p.BackoffFactor))
	}
	if len(problems) == 0 {
		return nil
	}
	return errs.Wrap(errs.InvalidArgument, "retry: invalid policy", errors.Join(problems...))
}

// Delay returns the backoff before attempt i+1, after the 0-based attempt i
// failed: InitialDelay * BackoffFactor^i. Overflow saturates.
func (p Policy) Delay(i int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.BackoffFactor, float64(i))
	if d >= math.MaxInt64 || math.IsInf(d, 1) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Retrier runs actions under a Policy using an injected clock.
type Retrier struct {
	clock clock.Clock
}

// New creates a Retrier. A nil clock means the wall clock.
func New(c clock.Clock) *Retrier {
	if c == nil {
		c = clock.Real{}
	}
	return &Retrier{clock: c}
}

// Do invokes fn until it succeeds or p.MaxAttempts invocations have failed.
// The last failure is returned as is. If ctx ends during a backoff, the
// returned error wraps both ctx.Err() and the last failure.
func (r *Retrier) Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	_, err := Value(ctx, r, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Value is Do for actions that produce a result.
func Value[T any](ctx context.Context, r *Retrier, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.Validate(); err != nil {
		return zero, err
	}
	logger := obs.From(ctx).With("pkg", "retry")

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Debug("retry succeeded", "attempt", attempt+1)
			}
			return v, nil
		}
		lastErr = err
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		logger.Debug("attempt failed, backing off",
			"attempt", attempt+1,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err)
		if sleepErr := r.clock.Sleep(ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("retry: %w after attempt %d: %w", sleepErr, attempt+1, lastErr)
		}
	}
	return zero, lastErr
}
