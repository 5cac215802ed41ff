// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package agentwire

import (
	"fmt"

	"github.com/go-json-experiment/json/jsontext"
)

// ProtocolVersion is the JSON-RPC version carried by every envelope.
const ProtocolVersion = "2.0"

// Method identifies an operation of the protocol.
type Method string

// Supported RPC methods.
const (
	// MethodMessageSend sends a message and waits for a single reply.
	MethodMessageSend Method = "message/send"
	// MethodMessageStream sends a message and subscribes to task progress events.
	MethodMessageStream Method = "message/stream"
	// MethodTasksGet retrieves the current state of a task.
	MethodTasksGet Method = "tasks/get"
	// MethodTasksCancel requests cancellation of a task.
	MethodTasksCancel Method = "tasks/cancel"
	// MethodPushConfigSet sets or clears the push notification configuration for a task.
	MethodPushConfigSet Method = "tasks/pushNotificationConfig/set"
	// MethodPushConfigGet retrieves the push notification configuration for a task.
	MethodPushConfigGet Method = "tasks/pushNotificationConfig/get"
	// MethodTasksResubscribe reattaches to the event stream of an existing task.
	MethodTasksResubscribe Method = "tasks/resubscribe"
	// MethodAgentCard retrieves the agent card over RPC.
	MethodAgentCard Method = "agent/getCard"
)

// Valid reports whether m is one of the supported methods.
func (m Method) Valid() bool {
	switch m {
	case MethodMessageSend, MethodMessageStream, MethodTasksGet,
		MethodTasksCancel, MethodPushConfigSet, MethodPushConfigGet,
		MethodTasksResubscribe, MethodAgentCard:
		return true
	}
	return false
}

// Streaming reports whether the method opens an event stream.
func (m Method) Streaming() bool {
	return m == MethodMessageStream || m == MethodTasksResubscribe
}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  Method `json:"method"`
	Params  any    `json:"params"`
}

// NewRequest creates a request envelope with the protocol version set.
func NewRequest(id string, method Method, params any) *Request {
	return &Request{
		JSONRPC: ProtocolVersion,
		ID:      id,
		Method:  method,
		Params:  params,
	}
}

// MessageSendParams are the parameters for message/send and
// message/stream.
type MessageSendParams struct {
	Message    Message                 `json:"message"`
	ContextID  string                  `json:"contextId,omitzero"`
	PushConfig *PushNotificationConfig `json:"pushNotificationConfig,omitzero"`
}

// TaskIDParams are the parameters for the task-addressed methods
// tasks/get, tasks/cancel, tasks/pushNotificationConfig/get and
// tasks/resubscribe.
type TaskIDParams struct {
	TaskID string `json:"taskId"`
}

// PushConfigSetParams are the parameters for
// tasks/pushNotificationConfig/set. A nil Config serializes as null
// and clears the configuration.
type PushConfigSetParams struct {
	TaskID string                  `json:"taskId"`
	Config *PushNotificationConfig `json:"pushNotificationConfig"`
}

// AgentCardParams are the (empty) parameters for agent/getCard.
type AgentCardParams struct{}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    jsontext.Value `json:"data,omitzero"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error: code = %d, message = %s", e.Code, e.Message)
}

// Standard JSON-RPC 2.0 error codes.
const (
	// ErrorCodeParse is returned when the server could not parse the request (-32700).
	ErrorCodeParse = -32700
	// ErrorCodeInvalidRequest is returned when the request envelope was invalid (-32600).
	ErrorCodeInvalidRequest = -32600
	// ErrorCodeMethodNotFound is returned when the method does not exist (-32601).
	ErrorCodeMethodNotFound = -32601
	// ErrorCodeInvalidParams is returned when the parameters are invalid (-32602).
	ErrorCodeInvalidParams = -32602
	// ErrorCodeInternal is returned on an internal server error (-32603).
	ErrorCodeInternal = -32603
)

// Protocol-specific error codes.
const (
	// ErrorCodeTaskNotFound is returned when the task id was not found (-32001).
	ErrorCodeTaskNotFound = -32001
	// ErrorCodeTaskNotCancelable is returned when the task is in a terminal state (-32002).
	ErrorCodeTaskNotCancelable = -32002
	// ErrorCodePushNotSupported is returned when the agent does not support push notifications (-32003).
	ErrorCodePushNotSupported = -32003
	// ErrorCodeUnsupportedOperation is returned when the operation is not supported (-32004).
	ErrorCodeUnsupportedOperation = -32004
)

// Response is a JSON-RPC 2.0 reply envelope, received either as a
// single HTTP body or as the payload of one stream frame.
type Response struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      string         `json:"id,omitzero"`
	Result  jsontext.Value `json:"result,omitzero"`
	Error   *Error         `json:"error,omitzero"`
}

// HasResult reports whether the envelope carries a non-null result.
func (r *Response) HasResult() bool {
	return len(r.Result) > 0 && string(r.Result) != "null"
}

// Validate checks the envelope shape: the protocol version must be
// declared, and exactly one of result/error must be present.
func (r *Response) Validate() error {
	if r.JSONRPC != ProtocolVersion {
		return fmt.Errorf("envelope declares protocol version %q, want %q", r.JSONRPC, ProtocolVersion)
	}
	hasResult := r.HasResult()
	hasError := r.Error != nil
	if hasResult && hasError {
		return fmt.Errorf("envelope carries both result and error")
	}
	if !hasResult && !hasError {
		return fmt.Errorf("envelope carries neither result nor error")
	}
	return nil
}

// TaskEvent is the decoded shape of a task-bearing result payload. It
// covers full Task replies as well as incremental status and artifact
// events; absent fields stay zero.
type TaskEvent struct {
	ID        string      `json:"id,omitzero"`
	TaskID    string      `json:"taskId,omitzero"`
	ContextID string      `json:"contextId,omitzero"`
	Status    *TaskStatus `json:"status,omitzero"`
	Artifact  *Artifact   `json:"artifact,omitzero"`
	Artifacts []Artifact  `json:"artifacts,omitzero"`
	Final     bool        `json:"final,omitzero"`
}
