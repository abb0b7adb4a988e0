// Package wait turns instantaneous state probes into bounded, cancellable
// waits with a single failure mode: *TimeoutError.
//
// Every wait evaluates its probe immediately, then once per poll interval.
// The last sleep is truncated so that the final evaluation happens exactly at
// the deadline; no evaluation is ever scheduled past it.
package wait

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kuitang/e2ekit/internal/clock"
	"github.com/kuitang/e2ekit/internal/errs"
	"github.com/kuitang/e2ekit/internal/locator"
	"github.com/kuitang/e2ekit/internal/obs"
)

const (
	// DefaultTimeout bounds strict waits when Options.Timeout is zero.
	DefaultTimeout = 10 * time.Second
	// DefaultSoftTimeout bounds soft existence checks.
	DefaultSoftTimeout = 2 * time.Second
	// MinPollInterval is the smallest derived poll interval.
	MinPollInterval = 50 * time.Millisecond

	pollDivisor = 20
)

// Options bounds a single wait. The zero value uses the engine defaults.
type Options struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// Normalize fills defaults: Timeout falls back to defaultTimeout (or
// DefaultTimeout), PollInterval to Timeout/20 floored at MinPollInterval.
// PollInterval never exceeds Timeout.
func (o Options) Normalize(defaultTimeout time.Duration) Options {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = o.Timeout / pollDivisor
		if o.PollInterval < MinPollInterval {
			o.PollInterval = MinPollInterval
		}
	}
	if o.PollInterval > o.Timeout {
		o.PollInterval = o.Timeout
	}
	return o
}

// TimeoutError reports a condition that never held within its budget.
type TimeoutError struct {
	Target    string
	Condition string
	Elapsed   time.Duration
	Timeout   time.Duration
	Polls     int
}

func (e *TimeoutError) Error() string {
	target := e.Target
	if target == "" {
		target = "page"
	}
	return fmt.Sprintf("wait: %s did not %s within %s (elapsed %s, %d polls)",
		target, e.Condition, e.Timeout, e.Elapsed, e.Polls)
}

// ErrorCode implements errs.Coder.
func (e *TimeoutError) ErrorCode() errs.Code {
	return errs.DeadlineExceeded
}

// IsTimeout reports whether err contains a *TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Probe reports whether a condition holds right now.
type Probe func(ctx context.Context) (bool, error)

// Engine runs waits against an injected clock.
type Engine struct {
	clock        clock.Clock
	timeout      time.Duration
	pollInterval time.Duration
	softTimeout  time.Duration
}

// Config holds engine-wide defaults. Zero fields take the package defaults.
type Config struct {
	Timeout time.Duration
	// PollInterval applies to every wait and soft check whose Options leave
	// PollInterval zero. Zero derives it from the wait's timeout.
	PollInterval time.Duration
	SoftTimeout  time.Duration
}

// NewEngine creates an engine. A nil clock means the wall clock.
func NewEngine(c clock.Clock, cfg Config) *Engine {
	if c == nil {
		c = clock.Real{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = DefaultSoftTimeout
	}
	return &Engine{
		clock:        c,
		timeout:      cfg.Timeout,
		pollInterval: cfg.PollInterval,
		softTimeout:  cfg.SoftTimeout,
	}
}

// Clock returns the engine's clock.
func (e *Engine) Clock() clock.Clock {
	return e.clock
}

// Until waits for cond to hold on el.
func (e *Engine) Until(ctx context.Context, el locator.Element, cond Condition, opts Options) error {
	return e.poll(ctx, el.Identifier(), cond.Description, func(ctx context.Context) (bool, error) {
		return cond.Check(ctx, el)
	}, opts)
}

// Poll waits for a page-level probe described by description.
func (e *Engine) Poll(ctx context.Context, description string, probe Probe, opts Options) error {
	return e.poll(ctx, "", description, probe, opts)
}

// Check is the soft form of Until: a timeout yields (false, nil) and every
// other error propagates. Zero opts use the soft timeout.
func (e *Engine) Check(ctx context.Context, el locator.Element, cond Condition, opts Options) (bool, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = e.softTimeout
	}
	err := e.Until(ctx, el, cond, opts)
	if err == nil {
		return true, nil
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return false, nil
	}
	return false, err
}

// IsVisible soft-checks that el becomes visible within the soft timeout.
func (e *Engine) IsVisible(ctx context.Context, el locator.Element) (bool, error) {
	return e.Check(ctx, el, Visible(), Options{})
}

func (e *Engine) poll(ctx context.Context, target, description string, probe Probe, opts Options) error {
	if opts.PollInterval <= 0 {
		opts.PollInterval = e.pollInterval
	}
	opts = opts.Normalize(e.timeout)
	start := e.clock.Now()
	polls := 0

	// Deadlines are judged by when an evaluation starts; Elapsed excludes
	// the time the last evaluation took. The [Timeout, Timeout+PollInterval)
	// bound holds as long as each evaluation returns within one poll interval.
	for {
		polls++
		evaluatedAt := e.clock.Now().Sub(start)
		ok, err := probe(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return err
			}
			return fmt.Errorf("wait: %s (%s): %w", targetOrPage(target), description, err)
		}
		if ok {
			if polls > 1 {
				e.logger(ctx).Debug("wait satisfied",
					"target", target,
					"condition", description,
					"polls", polls,
					"elapsed", e.clock.Now().Sub(start))
			}
			return nil
		}

		if evaluatedAt >= opts.Timeout {
			e.logger(ctx).Debug("wait timed out",
				"target", target,
				"condition", description,
				"polls", polls,
				"elapsed", evaluatedAt)
			return &TimeoutError{
				Target:    target,
				Condition: description,
				Elapsed:   evaluatedAt,
				Timeout:   opts.Timeout,
				Polls:     polls,
			}
		}

		// An evaluation that ran past the deadline is followed at once by
		// the final one.
		remaining := opts.Timeout - e.clock.Now().Sub(start)
		if remaining <= 0 {
			continue
		}
		if err := e.clock.Sleep(ctx, min(opts.PollInterval, remaining)); err != nil {
			return err
		}
	}
}

func (e *Engine) logger(ctx context.Context) *slog.Logger {
	return obs.From(ctx).With("pkg", "wait")
}

func targetOrPage(target string) string {
	if target == "" {
		return "page"
	}
	return target
}
