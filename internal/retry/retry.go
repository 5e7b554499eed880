// Package retry provides a bounded fixed-backoff retry wrapper for
// transient failures against storage, email, and webhook endpoints.
package retry

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Do invokes fn until it succeeds or attempts are exhausted, sleeping
// delay between attempts. The backoff is fixed: no jitter, no growth.
// The last error is returned once all attempts fail. Each failed attempt
// logs a warning tagged with the worker identity so traces and logs line
// up.
func Do(ctx context.Context, op, worker string, attempts int, delay time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		log.Printf("[%s] %s failed on attempt %d of %d: %v", worker, op, attempt, attempts, err)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w (last error: %v)", ctx.Err(), err)
		case <-time.After(delay):
		}
	}
	return err
}

// DoValue is Do for operations that return a value alongside the error.
func DoValue[T any](ctx context.Context, op, worker string, attempts int, delay time.Duration, fn func() (T, error)) (T, error) {
	var out T
	err := Do(ctx, op, worker, attempts, delay, func() error {
		var ferr error
		out, ferr = fn()
		return ferr
	})
	return out, err
}
