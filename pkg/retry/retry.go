// Package retry runs operations with exponential backoff and forwards
// undeliverable messages to a dead letter topic.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is returned when every attempt failed
var ErrExhausted = errors.New("retry attempts exhausted")

// Policy describes how often and how far apart attempts are made
type Policy struct {
	// Attempts is the total number of tries, including the first one
	Attempts int
	// Initial is the wait before the second attempt
	Initial time.Duration
	// Max caps any single wait
	Max time.Duration
	// Multiplier grows the wait after each attempt
	Multiplier float64
	// Jitter is the +/- fraction applied to each wait (0-1)
	Jitter float64
}

// DefaultPolicy returns three attempts with short waits, suited to a
// publisher that is itself polled again on failure.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   3,
		Initial:    50 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 2,
		Jitter:     0.2,
	}
}

func (p Policy) normalized() Policy {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Initial <= 0 {
		p.Initial = 50 * time.Millisecond
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	p.Jitter = math.Max(0, math.Min(1, p.Jitter))
	return p
}

// Backoff returns the wait after the given failed attempt (1-based)
func (p Policy) Backoff(attempt int) time.Duration {
	p = p.normalized()
	if attempt < 1 {
		attempt = 1
	}
	wait := float64(p.Initial) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.Jitter > 0 {
		wait += (rand.Float64()*2 - 1) * wait * p.Jitter
	}
	if wait > float64(p.Max) {
		wait = float64(p.Max)
	}
	if wait < 0 {
		wait = float64(p.Initial)
	}
	return time.Duration(wait)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so that Do stops retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Do calls op until it succeeds, returns a permanent error, the context
// ends or the policy runs out of attempts. onRetry, when set, is called
// before each wait. It returns the number of attempts made and the last
// error, wrapped with ErrExhausted when attempts ran out.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, onRetry func(attempt int, err error)) (int, error) {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return attempt - 1, err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		var pe *permanentError
		if errors.As(lastErr, &pe) {
			return attempt, pe.err
		}
		if attempt == p.Attempts {
			break
		}

		if onRetry != nil {
			onRetry(attempt, lastErr)
		}
		timer := time.NewTimer(p.Backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}
	}
	return p.Attempts, errors.Join(ErrExhausted, lastErr)
}
