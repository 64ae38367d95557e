package utils

import (
	"fmt"
	"time"
)

// RetryConfig holds the parameters for the retry strategy.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Multiplier scales the delay after every failed attempt. Values <= 1 keep
	// the delay fixed.
	Multiplier float64
	Logger     *Logger
	// Retryable reports whether an error is worth another attempt. Nil means
	// every error is retried.
	Retryable func(error) bool
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
}

// ExhaustedError is returned by Do when every attempt failed.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Err       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do executes fn until it succeeds, returns a non-retryable error or runs out
// of attempts. MaxAttempts counts the first call.
func (r *RetryConfig) Do(operationName string, fn func() error) error {
	attempts := r.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var lastErr error
	delay := r.BaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if r.Retryable != nil && !r.Retryable(lastErr) {
			return lastErr
		}

		if attempt < attempts {
			if r.Logger != nil {
				r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
					operationName, attempt, attempts, lastErr, delay)
			}
			if delay > 0 {
				sleep(delay)
			}
			if r.Multiplier > 1 {
				delay = time.Duration(float64(delay) * r.Multiplier)
			}
		} else if r.Logger != nil {
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v",
				operationName, attempt, attempts, lastErr)
		}
	}

	return &ExhaustedError{Operation: operationName, Attempts: attempts, Err: lastErr}
}
