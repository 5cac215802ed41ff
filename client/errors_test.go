// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/agentwire/agentwire/client"
)

func TestClassifyHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
		want   string
	}{
		{400, client.IsBadRequestError, "BadRequestError"},
		{401, client.IsAuthenticationError, "AuthenticationError"},
		{403, client.IsAuthenticationError, "AuthenticationError"},
		{404, client.IsNotFoundError, "NotFoundError"},
		{500, client.IsServerError, "ServerError"},
		{502, client.IsServerError, "ServerError"},
		{503, client.IsServerError, "ServerError"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d", tt.status), func(t *testing.T) {
			err := client.ClassifyHTTPStatus("send", tt.status)
			if !tt.check(err) {
				t.Errorf("status %d classified as %v, want %s", tt.status, err, tt.want)
			}
			if err.Status != tt.status {
				t.Errorf("Status = %d, want %d", err.Status, tt.status)
			}
		})
	}
}

func TestClassifyHTTPStatus_Other(t *testing.T) {
	err := client.ClassifyHTTPStatus("send", 418)
	if err.Kind != client.KindHTTP {
		t.Errorf("Kind = %v, want KindHTTP", err.Kind)
	}
}

func TestClassify(t *testing.T) {
	// Raw errors become transport failures.
	err := client.Classify("send", errors.New("connection refused"))
	if !client.IsTransportError(err) {
		t.Errorf("error = %v, want TransportError", err)
	}

	// Context errors pass through unwrapped.
	if got := client.Classify("send", context.Canceled); !errors.Is(got, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", got)
	}
	if got := client.Classify("send", context.DeadlineExceeded); !errors.Is(got, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", got)
	}

	// Already classified errors keep their kind.
	orig := client.ClassifyHTTPStatus("send", 404)
	if got := client.Classify("send", fmt.Errorf("call: %w", orig)); !client.IsNotFoundError(got) {
		t.Errorf("error = %v, want NotFoundError preserved", got)
	}

	if client.Classify("send", nil) != nil {
		t.Error("Classify(nil) != nil")
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind client.Kind
		want string
	}{
		{client.KindInvalidRequest, "InvalidRequest"},
		{client.KindTransport, "TransportError"},
		{client.KindBadRequest, "BadRequestError"},
		{client.KindAuthentication, "AuthenticationError"},
		{client.KindNotFound, "NotFoundError"},
		{client.KindServer, "ServerError"},
		{client.KindHTTP, "HttpError"},
		{client.KindProtocolViolation, "ProtocolViolation"},
		{client.KindMalformedFrame, "MalformedFrame"},
		{client.KindFrameTooLarge, "FrameTooLarge"},
		{client.KindStreamInterrupted, "StreamInterrupted"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &client.Error{Kind: client.KindTransport, Op: "send", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("Unwrap lost the cause")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", client.ClassifyHTTPStatus("send", 500), true},
		{"rate limited", client.ClassifyHTTPStatus("send", 429), true},
		{"transport", &client.Error{Kind: client.KindTransport, Op: "send"}, true},
		{"bad request", client.ClassifyHTTPStatus("send", 400), false},
		{"auth", client.ClassifyHTTPStatus("send", 401), false},
		{"not found", client.ClassifyHTTPStatus("send", 404), false},
		{"protocol violation", &client.Error{Kind: client.KindProtocolViolation, Op: "send"}, false},
		{"plain error", errors.New("nope"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := client.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
