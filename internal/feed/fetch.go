// Package feed adapts the platform clients into the quote sources the
// scanners consume, adding retries, rate limiting, simulation and live
// websocket snapshots.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/arbscanner/internal/domain"
)

// FetchPolicy bounds how an upstream call is retried and rate limited.
type FetchPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	// Limiter is optional. When set, every attempt waits for a slot under
	// LimitKey, Limit calls per Window.
	Limiter  domain.RateLimiter
	LimitKey string
	Limit    int
	Window   time.Duration
	Logger   *slog.Logger
}

// Do runs fn until it succeeds, fails permanently or the retries run out.
// Exhaustion is reported as domain.ErrUpstream.
func (p FetchPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	attempts := p.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if p.Limiter != nil && p.Limit > 0 {
			if werr := p.Limiter.Wait(ctx, p.LimitKey, p.Limit, p.Window); werr != nil {
				return fmt.Errorf("feed: %s: rate limit: %w", op, werr)
			}
		}

		err = fn(ctx)
		if err == nil {
			return nil
		}
		if !retryable(ctx, err) {
			return fmt.Errorf("feed: %s: %w", op, err)
		}
		if attempt == attempts {
			break
		}

		if p.Logger != nil {
			p.Logger.Warn("upstream fetch failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		timer := time.NewTimer(p.Backoff * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("feed: %s: %w", op, ctx.Err())
		case <-timer.C:
		}
	}

	if !errors.Is(err, domain.ErrUpstream) {
		err = fmt.Errorf("%w: %w", domain.ErrUpstream, err)
	}
	return fmt.Errorf("feed: %s failed after %d attempts: %w", op, attempts, err)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	return !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrInvalidInput)
}
