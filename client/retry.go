// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig controls automatic retry of transient failures.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, the first try
	// included.
	MaxAttempts int
	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the backoff.
	MaxDelay time.Duration
	// Multiplier grows the delay between attempts.
	Multiplier float64
	// RetryableErrors decides whether an error is worth retrying.
	// Defaults to IsRetryable.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns a retry policy suitable for most
// deployments.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

func (c *RetryConfig) validate() error {
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive: %d", c.MaxAttempts)
	}
	if c.InitialDelay <= 0 {
		return fmt.Errorf("retry initial delay must be positive: %v", c.InitialDelay)
	}
	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("retry max delay %v is below initial delay %v", c.MaxDelay, c.InitialDelay)
	}
	if c.Multiplier < 1.0 {
		return fmt.Errorf("retry multiplier must be at least 1.0: %v", c.Multiplier)
	}
	return nil
}

func (c *RetryConfig) retryable(err error) bool {
	if c.RetryableErrors != nil {
		return c.RetryableErrors(err)
	}
	return IsRetryable(err)
}

// retryableFunc is a function that can be retried.
type retryableFunc func(context.Context) error

// withRetry executes fn with exponential backoff and jitter.
func withRetry(ctx context.Context, config *RetryConfig, operation string, fn retryableFunc) error {
	if config == nil || config.MaxAttempts <= 0 {
		return fn(ctx)
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !config.retryable(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		// 10% jitter keeps synchronized clients from retrying in
		// lockstep.
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)

		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, config.MaxAttempts, lastErr)
}

// retryInterceptor wraps the transport with retry logic. Server
// errors and rate limiting are retried; everything else passes
// through on the first attempt.
func retryInterceptor(config *RetryConfig) HTTPInterceptor {
	return func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error) {
		var resp *http.Response

		err := withRetry(ctx, config, "HTTP request", func(ctx context.Context) error {
			// Rewind the body for replay on retried attempts.
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return err
				}
				req.Body = body
			}

			var err error
			resp, err = invoker(ctx, req)
			if err != nil {
				return err
			}

			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				resp.Body.Close()
				return ClassifyHTTPStatus("HTTP request", resp.StatusCode)
			}
			return nil
		})

		return resp, err
	}
}
