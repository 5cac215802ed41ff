// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"net/http"
)

// Invoker represents the next handler in the interceptor chain.
type Invoker func(ctx context.Context, req *http.Request) (*http.Response, error)

// HTTPInterceptor wraps an outbound request. Interceptors run in
// registration order; each may modify the request, inspect the
// response, or short-circuit entirely.
type HTTPInterceptor func(ctx context.Context, req *http.Request, invoker Invoker) (*http.Response, error)

// chainInterceptors composes interceptors around invoker, rightmost
// innermost.
func chainInterceptors(interceptors []HTTPInterceptor, invoker Invoker) Invoker {
	if len(interceptors) == 0 {
		return invoker
	}

	for i := len(interceptors) - 1; i >= 0; i-- {
		interceptor := interceptors[i]
		next := invoker
		invoker = func(ctx context.Context, req *http.Request) (*http.Response, error) {
			return interceptor(ctx, req, next)
		}
	}

	return invoker
}
