// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), testRetryConfig(3), "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &Error{Kind: KindServer, Op: "op", Status: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry failed: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), testRetryConfig(2), "op", func(context.Context) error {
		calls++
		return &Error{Kind: KindServer, Op: "op", Status: 500}
	})
	if err == nil {
		t.Fatal("withRetry succeeded, want failure")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	// The final error keeps the classified cause.
	if !IsServerError(err) {
		t.Errorf("error = %v, want ServerError preserved", err)
	}
}

func TestWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), testRetryConfig(5), "op", func(context.Context) error {
		calls++
		return &Error{Kind: KindAuthentication, Op: "op", Status: 401}
	})
	if !IsAuthenticationError(err) {
		t.Fatalf("error = %v, want AuthenticationError", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestWithRetry_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, testRetryConfig(3), "op", func(context.Context) error {
		t.Error("fn called with canceled context")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestWithRetry_NoConfigRunsOnce(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return &Error{Kind: KindServer, Op: "op"}
	})
	if err == nil || calls != 1 {
		t.Errorf("err = %v, calls = %d, want one failing call", err, calls)
	}
}

func TestRetryConfig_Validate(t *testing.T) {
	if err := testRetryConfig(3).validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	bad := []*RetryConfig{
		{MaxAttempts: 0, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2},
		{MaxAttempts: 3, InitialDelay: 0, MaxDelay: time.Second, Multiplier: 2},
		{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 2},
		{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 0.5},
	}
	for i, cfg := range bad {
		if err := cfg.validate(); err == nil {
			t.Errorf("bad config %d accepted", i)
		}
	}
}
