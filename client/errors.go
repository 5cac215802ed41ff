// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/agentwire/agentwire"
)

// Kind is the closed classification of client failures. Every error
// crossing a component boundary carries exactly one Kind.
type Kind int

const (
	// KindInvalidRequest is a builder-detected failure, e.g. an empty message.
	KindInvalidRequest Kind = iota + 1
	// KindTransport is a network failure before any response arrived.
	KindTransport
	// KindBadRequest is an HTTP 400 reply.
	KindBadRequest
	// KindAuthentication is an HTTP 401 or 403 reply, or a locally
	// rejected credential.
	KindAuthentication
	// KindNotFound is an HTTP 404 reply.
	KindNotFound
	// KindServer is an HTTP 5xx reply.
	KindServer
	// KindHTTP is any other non-success HTTP status.
	KindHTTP
	// KindProtocolViolation is an envelope missing required fields, or
	// carrying both/neither of result and error.
	KindProtocolViolation
	// KindMalformedFrame is one frame whose JSON failed to parse.
	// Non-fatal: decoding of subsequent frames continues.
	KindMalformedFrame
	// KindFrameTooLarge is an unterminated frame exceeding the
	// configured bound. Fatal for the stream.
	KindFrameTooLarge
	// KindStreamInterrupted is a connection dropped, or gone idle,
	// without a terminal status.
	KindStreamInterrupted
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidRequest:
		return "InvalidRequest"
	case KindTransport:
		return "TransportError"
	case KindBadRequest:
		return "BadRequestError"
	case KindAuthentication:
		return "AuthenticationError"
	case KindNotFound:
		return "NotFoundError"
	case KindServer:
		return "ServerError"
	case KindHTTP:
		return "HttpError"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindMalformedFrame:
		return "MalformedFrame"
	case KindFrameTooLarge:
		return "FrameTooLarge"
	case KindStreamInterrupted:
		return "StreamInterrupted"
	default:
		return "Unknown"
	}
}

// Error is a classified client failure.
type Error struct {
	// Kind is the taxonomy entry.
	Kind Kind
	// Op names the operation that failed.
	Op string
	// Status is the HTTP status code when Kind refines one.
	Status int
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s (HTTP %d): %v", e.Op, e.Kind, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (HTTP %d)", e.Op, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// newError creates a classified error.
func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// ClassifyHTTPStatus maps a non-success HTTP status to the taxonomy.
func ClassifyHTTPStatus(op string, status int) *Error {
	kind := KindHTTP
	switch {
	case status == 400:
		kind = KindBadRequest
	case status == 401 || status == 403:
		kind = KindAuthentication
	case status == 404:
		kind = KindNotFound
	case status >= 500:
		kind = KindServer
	}
	return &Error{Kind: kind, Op: op, Status: status}
}

// Classify maps a raw failure to the taxonomy. Already classified
// errors and protocol-level RPC errors pass through unchanged; a
// context cancellation stays a cancellation; everything else is a
// transport failure.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	var rpcErr *agentwire.Error
	if errors.As(err, &rpcErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return newError(KindTransport, op, err)
}

// kindOf extracts the Kind of a classified error, or zero.
func kindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// IsInvalidRequest reports whether err was rejected by the request builder.
func IsInvalidRequest(err error) bool { return kindOf(err) == KindInvalidRequest }

// IsTransportError reports whether err is a network failure before any response.
func IsTransportError(err error) bool { return kindOf(err) == KindTransport }

// IsBadRequestError reports whether err is an HTTP 400.
func IsBadRequestError(err error) bool { return kindOf(err) == KindBadRequest }

// IsAuthenticationError reports whether err is an HTTP 401/403 or a rejected credential.
func IsAuthenticationError(err error) bool { return kindOf(err) == KindAuthentication }

// IsNotFoundError reports whether err is an HTTP 404.
func IsNotFoundError(err error) bool { return kindOf(err) == KindNotFound }

// IsServerError reports whether err is an HTTP 5xx.
func IsServerError(err error) bool { return kindOf(err) == KindServer }

// IsProtocolViolation reports whether err is a malformed envelope.
func IsProtocolViolation(err error) bool { return kindOf(err) == KindProtocolViolation }

// IsMalformedFrame reports whether err is a single unparsable frame.
func IsMalformedFrame(err error) bool { return kindOf(err) == KindMalformedFrame }

// IsFrameTooLarge reports whether err is an unterminated frame overflow.
func IsFrameTooLarge(err error) bool { return kindOf(err) == KindFrameTooLarge }

// IsStreamInterrupted reports whether err is a dropped or idle stream.
func IsStreamInterrupted(err error) bool { return kindOf(err) == KindStreamInterrupted }

// IsRetryable determines whether an error should trigger a retry of a
// request dispatch. Streams are never retried here; reattaching is the
// caller's policy.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ce *Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case KindTransport, KindServer:
			return true
		case KindHTTP:
			return ce.Status == 429
		}
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
