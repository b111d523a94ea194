// Package retry runs an operation under a bounded attempt budget with
// exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() []error {
	return []error{p.err, ErrPermanent}
}

// Permanent wraps err so Do stops retrying and returns it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Error is returned when every attempt failed.
type Error struct {
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("gave up after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Policy controls attempts and backoff.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	// OnRetry, when set, is called before sleeping ahead of the next attempt.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// DefaultPolicy retries three times starting at one second.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
	}
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff < 0 {
		p.InitialBackoff = 0
	}
	if p.Multiplier < 1 {
		p.Multiplier = 1
	}
	if p.MaxBackoff > 0 && p.InitialBackoff > p.MaxBackoff {
		p.InitialBackoff = p.MaxBackoff
	}
	return p
}

// Backoff returns the wait before attempt n+1, given n failed attempts.
func (p Policy) Backoff(n int) time.Duration {
	p = p.normalized()
	wait := float64(p.InitialBackoff)
	for i := 1; i < n; i++ {
		wait *= p.Multiplier
		if p.MaxBackoff > 0 && wait >= float64(p.MaxBackoff) {
			return p.MaxBackoff
		}
	}
	return time.Duration(wait)
}

// Do calls fn until it succeeds, returns a permanent error, the attempt budget
// runs out or ctx is done.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return &Error{Attempts: attempt - 1, Err: errors.Join(lastErr, err)}
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return err
		}
		lastErr = err

		if attempt == p.MaxAttempts {
			break
		}

		wait := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if wait <= 0 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return &Error{Attempts: attempt, Err: errors.Join(lastErr, ctx.Err())}
		case <-timer.C:
		}
	}
	return &Error{Attempts: p.MaxAttempts, Err: lastErr}
}
