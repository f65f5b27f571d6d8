// Package retry implements bounded exponential-backoff retry for external
// calls. The policy is an explicit value applied at each call site rather than
// a cross-cutting decorator, so retry behavior stays visible where the call is
// made.
package retry

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Policy describes one retry schedule. The delay before attempt n+1 is
// min(BaseDelay * ExponentialBase^(n-1), MaxDelay), attempts numbered from 1.
// No jitter is applied; concurrent callers retry in lockstep and should
// compensate at scale.
type Policy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64
}

// Default mirrors the progress-API schedule: 1s, 2s, 4s, 8s between five
// attempts, capped at a minute.
var Default = Policy{
	MaxAttempts:     5,
	BaseDelay:       time.Second,
	MaxDelay:        60 * time.Second,
	ExponentialBase: 2.0,
}

type transientError struct{ err error }

func (t *transientError) Error() string { return t.err.Error() }
func (t *transientError) Unwrap() error { return t.err }

// Transient marks err as retryable. Non-marked errors propagate immediately
// without retry (validation-class failures must not be repeated).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// Do runs fn until it succeeds, returns a non-transient error, or the policy
// is exhausted, in which case the last error is returned. A warning is logged
// per retry and an error on final failure.
func (p Policy) Do(ctx context.Context, log *zerolog.Logger, name string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return err
		}
		lastErr = err

		if attempt == attempts {
			log.Error().Err(err).Str("op", name).Int("attempts", attempts).
				Msg("retries exhausted")
			break
		}

		delay := p.delay(attempt)
		log.Warn().Err(err).Str("op", name).
			Int("attempt", attempt).Int("max_attempts", attempts).
			Dur("retry_in", delay).Msg("transient failure, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}

func (p Policy) delay(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}
	expBase := p.ExponentialBase
	if expBase <= 1 {
		expBase = 2.0
	}
	d := time.Duration(float64(base) * math.Pow(expBase, float64(attempt-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}
