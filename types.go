// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package agentwire provides wire-level types for an agent
// communication protocol: JSON-RPC 2.0 envelopes carried over HTTP,
// and the task, message and artifact shapes those envelopes contain.
package agentwire

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
)

// Role identifies the sender of a message.
type Role string

// Roles for message senders.
const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// TaskState represents the lifecycle state of a Task.
type TaskState string

const (
	// TaskStateSubmitted indicates the task has been received but not started.
	TaskStateSubmitted TaskState = "submitted"

	// TaskStateWorking indicates the task is being worked on.
	TaskStateWorking TaskState = "working"

	// TaskStateInputRequired indicates the task is paused waiting for user input.
	TaskStateInputRequired TaskState = "input-required"

	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"

	// TaskStateFailed indicates the task finished with an error.
	TaskStateFailed TaskState = "failed"

	// TaskStateCanceled indicates the task was canceled.
	TaskStateCanceled TaskState = "canceled"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// Valid reports whether s is one of the enumerated task states.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStateSubmitted, TaskStateWorking, TaskStateInputRequired,
		TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// Part represents one segment of a message or artifact.
// It is a tagged union: either a text part or a file part.
type Part interface {
	PartType() string
	Validate() error
}

// TextPart is a plain text segment.
type TextPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// PartType returns the part tag.
func (p TextPart) PartType() string { return "text" }

// Validate ensures the TextPart is well-formed.
func (p TextPart) Validate() error {
	if p.Type != "text" {
		return fmt.Errorf("text part type must be %q, got %q", "text", p.Type)
	}
	return nil
}

// FileContent carries an attached file as base64-encoded bytes.
type FileContent struct {
	Name     string `json:"name,omitzero"`
	MIMEType string `json:"mimeType,omitzero"`
	Bytes    string `json:"bytes,omitzero"`
}

// FilePart is a file segment.
type FilePart struct {
	Type string      `json:"type"`
	File FileContent `json:"file"`
}

// PartType returns the part tag.
func (p FilePart) PartType() string { return "file" }

// Validate ensures the FilePart is well-formed.
func (p FilePart) Validate() error {
	if p.Type != "file" {
		return fmt.Errorf("file part type must be %q, got %q", "file", p.Type)
	}
	if p.File.Bytes == "" {
		return fmt.Errorf("file part bytes cannot be empty")
	}
	if _, err := base64.StdEncoding.DecodeString(p.File.Bytes); err != nil {
		return fmt.Errorf("file part bytes are not valid base64: %w", err)
	}
	return nil
}

// PartUnion wraps a Part so the tagged union survives JSON
// serialization in both directions.
type PartUnion struct {
	part Part
}

// NewTextPart creates a text part.
func NewTextPart(text string) *PartUnion {
	return &PartUnion{part: &TextPart{Type: "text", Text: text}}
}

// NewFilePart creates a file part from raw bytes, encoding them for
// the wire.
func NewFilePart(name, mimeType string, data []byte) *PartUnion {
	return &PartUnion{part: &FilePart{
		Type: "file",
		File: FileContent{
			Name:     name,
			MIMEType: mimeType,
			Bytes:    base64.StdEncoding.EncodeToString(data),
		},
	}}
}

// Part returns the wrapped part.
func (u *PartUnion) Part() Part {
	return u.part
}

// Validate validates the wrapped part.
func (u *PartUnion) Validate() error {
	if u.part == nil {
		return fmt.Errorf("part union cannot contain nil part")
	}
	return u.part.Validate()
}

// MarshalJSON implements custom JSON marshaling for PartUnion.
func (u PartUnion) MarshalJSON() ([]byte, error) {
	if u.part == nil {
		return nil, fmt.Errorf("cannot marshal nil part")
	}
	return json.Marshal(u.part)
}

// UnmarshalJSON implements custom JSON unmarshaling for PartUnion.
func (u *PartUnion) UnmarshalJSON(data []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("failed to unmarshal part type: %w", err)
	}

	switch tag.Type {
	case "text":
		var p TextPart
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal text part: %w", err)
		}
		u.part = &p
	case "file":
		var p FilePart
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal file part: %w", err)
		}
		u.part = &p
	default:
		return fmt.Errorf("unknown part type: %q", tag.Type)
	}
	return nil
}

// TextContent concatenates all text parts in order, with no
// separator. Non-text parts are skipped.
func TextContent(parts []*PartUnion) string {
	var sb strings.Builder
	for _, p := range parts {
		if p == nil {
			continue
		}
		if tp, ok := p.Part().(*TextPart); ok {
			sb.WriteString(tp.Text)
		}
	}
	return sb.String()
}

// Message is one turn of a conversation.
type Message struct {
	Role      Role         `json:"role"`
	Parts     []*PartUnion `json:"parts"`
	MessageID string       `json:"messageId"`
	ContextID string       `json:"contextId,omitzero"`
}

// Validate ensures the Message is well-formed.
func (m Message) Validate() error {
	if m.Role != RoleUser && m.Role != RoleAgent {
		return fmt.Errorf("invalid message role: %q", m.Role)
	}
	if m.MessageID == "" {
		return fmt.Errorf("message ID cannot be empty")
	}
	if len(m.Parts) == 0 {
		return fmt.Errorf("message must contain at least one part")
	}
	for i, part := range m.Parts {
		if part == nil {
			return fmt.Errorf("message part at index %d cannot be nil", i)
		}
		if err := part.Validate(); err != nil {
			return fmt.Errorf("message part at index %d is invalid: %w", i, err)
		}
	}
	return nil
}

// TaskStatus is the current status of a task, optionally accompanied
// by an agent message describing it.
type TaskStatus struct {
	State     TaskState `json:"state"`
	Message   *Message  `json:"message,omitzero"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// Artifact is a chunk of agent-produced output, possibly delivered
// incrementally. LastChunk closes accumulation for the artifact but
// does not by itself terminate the task.
type Artifact struct {
	Parts     []*PartUnion `json:"parts"`
	LastChunk bool         `json:"lastChunk,omitzero"`
}

// Task is one long-running unit of work tracked by id.
type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId,omitzero"`
	Status    TaskStatus `json:"status"`
	Artifacts []Artifact `json:"artifacts,omitzero"`
	Final     bool       `json:"final,omitzero"`
}

// PushAuthInfo describes how the remote side should authenticate to
// the push webhook.
type PushAuthInfo struct {
	Scheme      string `json:"scheme,omitzero"`
	Credentials string `json:"credentials,omitzero"`
}

// PushNotificationConfig configures out-of-band task notifications
// for one task id. A null config on the wire clears it.
type PushNotificationConfig struct {
	WebhookURL string        `json:"webhookUrl"`
	AuthInfo   *PushAuthInfo `json:"authInfo,omitzero"`
}

// Validate ensures the PushNotificationConfig is well-formed.
func (c PushNotificationConfig) Validate() error {
	if c.WebhookURL == "" {
		return fmt.Errorf("push notification webhook URL cannot be empty")
	}
	return nil
}

// AgentCapabilities advertises optional protocol features of an agent.
type AgentCapabilities struct {
	Streaming         bool `json:"streaming,omitzero"`
	PushNotifications bool `json:"pushNotifications,omitzero"`
}

// AgentCard is the metadata an agent publishes about itself.
type AgentCard struct {
	Name         string            `json:"name"`
	Description  string            `json:"description,omitzero"`
	URL          string            `json:"url,omitzero"`
	Version      string            `json:"version,omitzero"`
	Capabilities AgentCapabilities `json:"capabilities,omitzero"`
}
