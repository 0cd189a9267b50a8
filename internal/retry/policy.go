// Package retry provides backoff policies and a generic retry executor for
// calls to flaky collaborators, primarily the editor extension HTTP API.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// Policy defines retry behavior for an operation
type Policy struct {
	MaxRetries        int           // Maximum number of retry attempts (0 = no retries)
	InitialDelay      time.Duration // Initial delay before first retry
	MaxDelay          time.Duration // Maximum delay between retries
	BackoffMultiplier float64       // Multiplier for exponential backoff (e.g., 2.0)
}

// DefaultPolicy returns the default retry policy
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      1 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// EditorPolicy returns the policy used for editor extension requests: quick
// retries with a small cap, since the caller is holding a chat reply open.
func EditorPolicy(maxRetries int) Policy {
	return Policy{
		MaxRetries:        maxRetries,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// CalculateDelay calculates the next retry delay based on the current attempt
// number using exponential backoff
func (p *Policy) CalculateDelay(retryCount int) time.Duration {
	if retryCount <= 0 {
		return p.InitialDelay
	}

	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(retryCount))

	if time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}

	return time.Duration(delay)
}

// ShouldRetry determines if an operation should be retried based on the
// attempt count
func (p *Policy) ShouldRetry(retryCount int) bool {
	return retryCount < p.MaxRetries
}

// Validate checks if the retry policy configuration is valid
func (p *Policy) Validate() error {
	if p.MaxRetries < 0 {
		return errors.New("MaxRetries must be non-negative")
	}
	if p.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.BackoffMultiplier <= 0 {
		return errors.New("BackoffMultiplier must be positive")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}

// Permanent wraps an error to mark it as non-retriable. Do returns it
// immediately without consuming further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Do runs fn until it succeeds, the policy is exhausted, or ctx is done.
// The returned error is the last failure, annotated with the attempt count
// when retries were consumed.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(lastErr, &perm) {
			return perm.err
		}
		if !p.ShouldRetry(attempt) {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(p.CalculateDelay(attempt)):
		}
	}
	return fmt.Errorf("after %d attempts: %w", p.MaxRetries+1, lastErr)
}
