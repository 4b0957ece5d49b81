// Package retry implements the capped exponential-backoff executor used by
// every remote call in the push and pull pipelines (spec §4.B). It never
// propagates the wrapped operation's error to its caller — failures are
// logged and surfaced only as a boolean result, matching the "sync routines
// never throw to their caller" propagation policy (spec §7).
package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy constants, per spec §4.B: up to 3 retries (4 total attempts),
// delay before attempt k is base * 2^(k-1).
const (
	MaxRetries = 3
	BaseDelay  = 2 * time.Second
)

// Op is an idempotent operation. Callers are responsible for idempotency —
// the executor assumes every remote write is an upsert (spec §4.B, §6.2/§6.3).
type Op func(ctx context.Context) error

// Executor runs operations with capped exponential backoff. The zero value
// is not usable; construct with New.
type Executor struct {
	logger    *slog.Logger
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// New creates an Executor. sleepFunc defaults to a context-aware time.Sleep;
// tests override it via WithSleepFunc to avoid real delays (mirrors the
// seam the teacher's graph.Client uses for the same reason).
func New(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{logger: logger, sleepFunc: sleepContext}
}

// WithSleepFunc overrides the delay function, for deterministic tests.
func (e *Executor) WithSleepFunc(f func(ctx context.Context, d time.Duration) error) *Executor {
	e.sleepFunc = f
	return e
}

// Execute runs op, retrying up to MaxRetries times with exponential backoff
// (2s, 4s, 8s) between attempts. Returns true if op eventually succeeded,
// false if every attempt failed or the context was canceled. The underlying
// error is never returned to the caller — only logged (spec §4.B, §7).
func (e *Executor) Execute(ctx context.Context, name string, op Op) bool {
	var lastErr error

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if ctx.Err() != nil {
			e.logger.Warn("retry: context canceled", slog.String("op", name))
			return false
		}

		err := op(ctx)
		if err == nil {
			return true
		}

		lastErr = err

		if attempt < MaxRetries {
			delay := BaseDelay * time.Duration(1<<attempt)

			e.logger.Warn("retry: attempt failed, backing off",
				slog.String("op", name),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.String("error", err.Error()),
			)

			if sleepErr := e.sleepFunc(ctx, delay); sleepErr != nil {
				e.logger.Warn("retry: canceled during backoff", slog.String("op", name))
				return false
			}
		}
	}

	e.logger.Error("retry: exhausted, giving up",
		slog.String("op", name),
		slog.Int("attempts", MaxRetries+1),
		slog.String("error", lastErr.Error()),
	)

	return false
}

// sleepContext sleeps for d or returns ctx.Err() if canceled first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
