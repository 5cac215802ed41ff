// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentwire/agentwire/client/internal/sse"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultIdleTimeout = 90 * time.Second
	defaultUserAgent   = "agentwire-go"
)

type options struct {
	httpClient   *http.Client
	timeout      time.Duration
	logger       *slog.Logger
	creds        *Credentials
	retry        *RetryConfig
	maxFrameSize int
	idleTimeout  time.Duration
	interceptors []HTTPInterceptor
	userAgent    string
}

// Option configures a Client.
type Option func(*options) error

func defaultOptions() *options {
	return &options{
		timeout:      defaultTimeout,
		logger:       slog.Default(),
		maxFrameSize: sse.DefaultMaxFrameSize,
		idleTimeout:  defaultIdleTimeout,
		userAgent:    defaultUserAgent,
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) error {
		if hc == nil {
			return fmt.Errorf("http client must not be nil")
		}
		o.httpClient = hc
		return nil
	}
}

// WithTimeout bounds a single non-streaming request.
func WithTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive: %v", d)
		}
		o.timeout = d
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		o.logger = logger
		return nil
	}
}

// WithCredentials attaches authentication credentials.
func WithCredentials(creds *Credentials) Option {
	return func(o *options) error {
		if err := creds.Validate(); err != nil {
			return err
		}
		o.creds = creds
		return nil
	}
}

// WithRetry enables automatic retry of transient failures.
func WithRetry(cfg RetryConfig) Option {
	return func(o *options) error {
		if err := cfg.validate(); err != nil {
			return err
		}
		o.retry = &cfg
		return nil
	}
}

// WithMaxFrameSize bounds a single streamed frame. Streams carrying a
// larger frame fail with a FrameTooLarge error.
func WithMaxFrameSize(n int) Option {
	return func(o *options) error {
		if n <= 0 {
			return fmt.Errorf("max frame size must be positive: %d", n)
		}
		o.maxFrameSize = n
		return nil
	}
}

// WithIdleTimeout bounds the silence between streamed frames,
// keep-alives included. An idle stream is torn down as interrupted.
func WithIdleTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return fmt.Errorf("idle timeout must be positive: %v", d)
		}
		o.idleTimeout = d
		return nil
	}
}

// WithInterceptors appends HTTP interceptors, applied in order around
// every outbound request.
func WithInterceptors(interceptors ...HTTPInterceptor) Option {
	return func(o *options) error {
		o.interceptors = append(o.interceptors, interceptors...)
		return nil
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) error {
		if ua == "" {
			return fmt.Errorf("user agent must not be empty")
		}
		o.userAgent = ua
		return nil
	}
}
