// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/agentwire/agentwire"
)

// FileAttachment is one file attached to an outbound message. Data is
// raw; the builder base64-encodes it for the wire.
type FileAttachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Input carries the caller-supplied pieces of one outbound request.
// Which fields matter depends on the method; the builder rejects
// inputs the method cannot use.
type Input struct {
	// Text is the user message text for message/send and message/stream.
	Text string
	// Files are attached after the text part, in order.
	Files []FileAttachment
	// TaskID addresses an existing task.
	TaskID string
	// ContextID correlates the request into an existing conversation.
	ContextID string
	// PushConfig is embedded alongside the message on send/stream, and
	// is the configuration payload of a pushNotificationConfig/set
	// (nil clears it there).
	PushConfig *agentwire.PushNotificationConfig
}

// BuildRequest constructs one well-formed request envelope for the
// given method. It is a pure function of its inputs apart from
// generated request and message ids.
func BuildRequest(method agentwire.Method, in Input) (*agentwire.Request, error) {
	if !method.Valid() {
		return nil, newError(KindInvalidRequest, "build", fmt.Errorf("unsupported method %q", method))
	}
	id := uuid.NewString()

	switch method {
	case agentwire.MethodMessageSend, agentwire.MethodMessageStream:
		msg, err := buildMessage(in)
		if err != nil {
			return nil, err
		}
		if in.PushConfig != nil {
			if err := in.PushConfig.Validate(); err != nil {
				return nil, newError(KindInvalidRequest, "build", err)
			}
		}
		return agentwire.NewRequest(id, method, agentwire.MessageSendParams{
			Message:    *msg,
			ContextID:  in.ContextID,
			PushConfig: in.PushConfig,
		}), nil

	case agentwire.MethodTasksGet, agentwire.MethodTasksCancel,
		agentwire.MethodPushConfigGet, agentwire.MethodTasksResubscribe:
		if in.TaskID == "" {
			return nil, newError(KindInvalidRequest, "build", fmt.Errorf("%s requires a task id", method))
		}
		return agentwire.NewRequest(id, method, agentwire.TaskIDParams{TaskID: in.TaskID}), nil

	case agentwire.MethodPushConfigSet:
		if in.TaskID == "" {
			return nil, newError(KindInvalidRequest, "build", fmt.Errorf("%s requires a task id", method))
		}
		if in.PushConfig != nil {
			if err := in.PushConfig.Validate(); err != nil {
				return nil, newError(KindInvalidRequest, "build", err)
			}
		}
		return agentwire.NewRequest(id, method, agentwire.PushConfigSetParams{
			TaskID: in.TaskID,
			Config: in.PushConfig,
		}), nil

	case agentwire.MethodAgentCard:
		return agentwire.NewRequest(id, method, agentwire.AgentCardParams{}), nil
	}
	return nil, newError(KindInvalidRequest, "build", fmt.Errorf("unsupported method %q", method))
}

// buildMessage assembles the outbound user message: one text part if
// any non-empty text was given, followed by one file part per
// attachment, in attachment order.
func buildMessage(in Input) (*agentwire.Message, error) {
	var parts []*agentwire.PartUnion
	if in.Text != "" {
		parts = append(parts, agentwire.NewTextPart(in.Text))
	}
	for _, f := range in.Files {
		parts = append(parts, agentwire.NewFilePart(f.Name, f.MIMEType, f.Data))
	}
	if len(parts) == 0 {
		return nil, newError(KindInvalidRequest, "build", fmt.Errorf("message requires at least one text or file part"))
	}
	return &agentwire.Message{
		Role:      agentwire.RoleUser,
		Parts:     parts,
		MessageID: uuid.NewString(),
	}, nil
}
