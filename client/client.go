// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package client implements an HTTP client for the agentwire
// protocol: JSON-RPC 2.0 requests with single JSON replies or
// Server-Sent-Events streams of task progress.
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/agentwire/agentwire"
)

// Client talks to one agent endpoint. It owns the task tracker for
// the session and every stream it opens; a Client is safe for
// concurrent use.
type Client struct {
	baseURL string
	opts    *options
	invoker Invoker
	tracker *Tracker

	cardMu sync.RWMutex
	card   *agentwire.AgentCard

	streamMu sync.Mutex
	streams  map[*Stream]struct{}

	errMu   sync.Mutex
	errSubs map[int]func(error)
	nextErr int

	closeMu sync.Mutex
	closed  bool
}

// Outcome is the result of one dispatched request: exactly one of
// Reply and Stream is non-nil.
type Outcome struct {
	// Reply is the decoded envelope of a single JSON response.
	Reply *agentwire.Response
	// Stream follows task progress events until a terminal state.
	Stream *Stream
}

// NewClient creates a client for the agent at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.httpClient == nil {
		// No client-wide timeout: it would cut long-lived streams.
		// Non-streaming requests are bounded per call instead.
		o.httpClient = &http.Client{}
	}

	interceptors := o.interceptors
	if o.retry != nil {
		interceptors = append([]HTTPInterceptor{retryInterceptor(o.retry)}, interceptors...)
	}
	invoker := func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return o.httpClient.Do(req.WithContext(ctx))
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		opts:    o,
		invoker: chainInterceptors(interceptors, invoker),
		tracker: NewTracker(o.logger),
		streams: make(map[*Stream]struct{}),
		errSubs: make(map[int]func(error)),
	}, nil
}

// Tracker returns the session's task tracker.
func (c *Client) Tracker() *Tracker {
	return c.tracker
}

// ContextID returns the conversation context id assigned by the
// agent, or "" before the first reply carrying one.
func (c *Client) ContextID() string {
	return c.tracker.ContextID()
}

// OnTaskUpdate registers fn to observe every state change of a task.
// The returned cancel func stops delivery and is idempotent.
func (c *Client) OnTaskUpdate(taskID string, fn func(Snapshot)) (cancel func()) {
	return c.tracker.Subscribe(taskID, fn)
}

// OnError registers fn to observe asynchronous failures: malformed
// frames, per-frame violations and stream teardown. The returned
// cancel func stops delivery.
func (c *Client) OnError(fn func(error)) (cancel func()) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	id := c.nextErr
	c.nextErr++
	c.errSubs[id] = fn
	return func() {
		c.errMu.Lock()
		defer c.errMu.Unlock()
		delete(c.errSubs, id)
	}
}

func (c *Client) reportError(err error) {
	c.errMu.Lock()
	fns := make([]func(error), 0, len(c.errSubs))
	for _, fn := range c.errSubs {
		fns = append(fns, fn)
	}
	c.errMu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// Send dispatches one request envelope and classifies the response as
// a single reply or an event stream by Content-Type, falling back to
// sniffing the body when the header lies. Task-bearing replies are
// folded into the tracker before Send returns.
func (c *Client) Send(ctx context.Context, req *agentwire.Request) (*Outcome, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if req == nil || !req.Method.Valid() {
		return nil, newError(KindInvalidRequest, "send", fmt.Errorf("invalid request envelope"))
	}
	op := string(req.Method)

	body, err := json.Marshal(req)
	if err != nil {
		return nil, newError(KindInvalidRequest, op, fmt.Errorf("marshal request: %w", err))
	}

	// Streams outlive the call and must not inherit the per-request
	// deadline. A unary method can still turn out to be a stream once
	// the body is sniffed, so the deadline is a stoppable timer rather
	// than a context deadline.
	cancel := context.CancelFunc(func() {})
	var deadline *time.Timer
	if !req.Method.Streaming() && c.opts.timeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithCancel(ctx)
		deadline = time.AfterFunc(c.opts.timeout, stop)
		cancel = func() {
			deadline.Stop()
			stop()
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, newError(KindInvalidRequest, op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	httpReq.Header.Set("User-Agent", c.opts.userAgent)
	if err := c.opts.creds.apply(httpReq); err != nil {
		cancel()
		return nil, err
	}

	resp, err := c.invoker(ctx, httpReq)
	if err != nil {
		cancel()
		return nil, Classify(op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer cancel()
		defer resp.Body.Close()
		herr := ClassifyHTTPStatus(op, resp.StatusCode)
		if detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512)); len(bytes.TrimSpace(detail)) > 0 {
			herr.Err = fmt.Errorf("%s", bytes.TrimSpace(detail))
		}
		return nil, herr
	}

	br := bufio.NewReader(resp.Body)
	if c.isEventStream(resp, br) {
		if deadline != nil {
			deadline.Stop()
		}
		stream := newStream(requestTaskID(req), c.tracker, c.opts.logger, c.reportError,
			readCloser{br, resp.Body}, c.opts.maxFrameSize, c.opts.idleTimeout, cancel, c.forgetStream)
		c.rememberStream(stream)
		return &Outcome{Stream: stream}, nil
	}

	defer cancel()
	defer resp.Body.Close()
	var reply agentwire.Response
	if err := json.UnmarshalRead(br, &reply); err != nil {
		return nil, newError(KindProtocolViolation, op, fmt.Errorf("decode reply: %w", err))
	}
	if err := reply.Validate(); err != nil {
		return nil, newError(KindProtocolViolation, op, err)
	}
	return &Outcome{Reply: &reply}, nil
}

// isEventStream decides whether resp carries an event stream. The
// Content-Type header wins; otherwise the first bytes of the body are
// inspected for an SSE field.
func (c *Client) isEventStream(resp *http.Response, br *bufio.Reader) bool {
	ct := resp.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "text/event-stream") {
		return true
	}
	if strings.HasPrefix(ct, "application/json") {
		return false
	}
	peek, _ := br.Peek(512)
	trimmed := bytes.TrimLeft(peek, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("data:")) || bytes.HasPrefix(trimmed, []byte(":"))
}

// readCloser pairs the buffered reader holding sniffed bytes with the
// underlying body for Close.
type readCloser struct {
	io.Reader
	io.Closer
}

// requestTaskID extracts the task id an outbound request addresses.
func requestTaskID(req *agentwire.Request) string {
	switch p := req.Params.(type) {
	case agentwire.TaskIDParams:
		return p.TaskID
	case agentwire.PushConfigSetParams:
		return p.TaskID
	}
	return ""
}

func (c *Client) rememberStream(s *Stream) {
	c.streamMu.Lock()
	c.streams[s] = struct{}{}
	c.streamMu.Unlock()
}

func (c *Client) forgetStream(s *Stream) {
	c.streamMu.Lock()
	delete(c.streams, s)
	c.streamMu.Unlock()
}

// call dispatches a non-streaming request and folds a task-shaped
// reply into the tracker.
func (c *Client) call(ctx context.Context, req *agentwire.Request) (Snapshot, error) {
	out, err := c.Send(ctx, req)
	if err != nil {
		return Snapshot{}, err
	}
	if out.Stream != nil {
		// The server opened a stream for a unary method; follow it to
		// the end.
		defer out.Stream.Close()
		return out.Stream.Wait(ctx)
	}
	return c.tracker.Apply(requestTaskID(req), out.Reply)
}

// stream dispatches a streaming request, tolerating servers that
// answer with a single JSON reply instead of a stream.
func (c *Client) stream(ctx context.Context, req *agentwire.Request) (*Stream, error) {
	if card := c.AgentCard(); card != nil && !card.Capabilities.Streaming {
		return nil, newError(KindInvalidRequest, string(req.Method), fmt.Errorf("agent does not support streaming"))
	}
	out, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if out.Stream != nil {
		return out.Stream, nil
	}
	snap, err := c.tracker.Apply(requestTaskID(req), out.Reply)
	if err != nil {
		return nil, err
	}
	return newReplyStream(snap), nil
}

// buildSend constructs a send or stream envelope, attaching the
// conversation context the agent assigned unless the caller chose one,
// and records the outbound message in the session history.
func (c *Client) buildSend(method agentwire.Method, in Input) (*agentwire.Request, error) {
	if in.ContextID == "" {
		in.ContextID = c.tracker.ContextID()
	}
	req, err := BuildRequest(method, in)
	if err != nil {
		return nil, err
	}
	if params, ok := req.Params.(agentwire.MessageSendParams); ok {
		c.tracker.RecordMessage(params.Message)
	}
	return req, nil
}

// SendMessage sends a message and blocks until the reply, or the
// stream a non-conforming server opened, yields the task's state.
func (c *Client) SendMessage(ctx context.Context, in Input) (Snapshot, error) {
	req, err := c.buildSend(agentwire.MethodMessageSend, in)
	if err != nil {
		return Snapshot{}, err
	}
	return c.call(ctx, req)
}

// SendMessageStream sends a message and subscribes to its task's
// progress events.
func (c *Client) SendMessageStream(ctx context.Context, in Input) (*Stream, error) {
	req, err := c.buildSend(agentwire.MethodMessageStream, in)
	if err != nil {
		return nil, err
	}
	return c.stream(ctx, req)
}

// GetTask retrieves the current state of a task.
func (c *Client) GetTask(ctx context.Context, taskID string) (Snapshot, error) {
	req, err := BuildRequest(agentwire.MethodTasksGet, Input{TaskID: taskID})
	if err != nil {
		return Snapshot{}, err
	}
	return c.call(ctx, req)
}

// CancelTask requests cancellation of a task and returns its state
// after the request.
func (c *Client) CancelTask(ctx context.Context, taskID string) (Snapshot, error) {
	req, err := BuildRequest(agentwire.MethodTasksCancel, Input{TaskID: taskID})
	if err != nil {
		return Snapshot{}, err
	}
	return c.call(ctx, req)
}

// Resubscribe reattaches to the event stream of an existing task.
func (c *Client) Resubscribe(ctx context.Context, taskID string) (*Stream, error) {
	req, err := BuildRequest(agentwire.MethodTasksResubscribe, Input{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	return c.stream(ctx, req)
}

// SetPushConfig sets the push notification configuration for a task.
// A nil config clears it.
func (c *Client) SetPushConfig(ctx context.Context, taskID string, config *agentwire.PushNotificationConfig) (*agentwire.PushNotificationConfig, error) {
	req, err := BuildRequest(agentwire.MethodPushConfigSet, Input{TaskID: taskID, PushConfig: config})
	if err != nil {
		return nil, err
	}
	return c.pushConfigCall(ctx, req)
}

// GetPushConfig retrieves the push notification configuration for a
// task. A nil result means none is set.
func (c *Client) GetPushConfig(ctx context.Context, taskID string) (*agentwire.PushNotificationConfig, error) {
	req, err := BuildRequest(agentwire.MethodPushConfigGet, Input{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	return c.pushConfigCall(ctx, req)
}

func (c *Client) pushConfigCall(ctx context.Context, req *agentwire.Request) (*agentwire.PushNotificationConfig, error) {
	out, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if out.Reply == nil {
		return nil, newError(KindProtocolViolation, string(req.Method), fmt.Errorf("unexpected event stream reply"))
	}
	if out.Reply.Error != nil {
		return nil, out.Reply.Error
	}
	var result struct {
		TaskID string                            `json:"taskId,omitzero"`
		Config *agentwire.PushNotificationConfig `json:"pushNotificationConfig,omitzero"`
	}
	if err := json.Unmarshal(out.Reply.Result, &result); err != nil {
		return nil, newError(KindProtocolViolation, string(req.Method), fmt.Errorf("decode push config: %w", err))
	}
	return result.Config, nil
}

// GetAgentCard retrieves the agent card over RPC and caches it.
func (c *Client) GetAgentCard(ctx context.Context) (*agentwire.AgentCard, error) {
	req, err := BuildRequest(agentwire.MethodAgentCard, Input{})
	if err != nil {
		return nil, err
	}
	out, err := c.Send(ctx, req)
	if err != nil {
		return nil, err
	}
	if out.Reply == nil {
		return nil, newError(KindProtocolViolation, string(req.Method), fmt.Errorf("unexpected event stream reply"))
	}
	if out.Reply.Error != nil {
		return nil, out.Reply.Error
	}
	var card agentwire.AgentCard
	if err := json.Unmarshal(out.Reply.Result, &card); err != nil {
		return nil, newError(KindProtocolViolation, string(req.Method), fmt.Errorf("decode agent card: %w", err))
	}
	c.setCard(&card)
	return &card, nil
}

func (c *Client) checkClosed() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return fmt.Errorf("client is closed")
	}
	return nil
}

// Close tears down every live stream. The client rejects further
// requests afterwards.
func (c *Client) Close() error {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return nil
	}
	c.closed = true
	c.closeMu.Unlock()

	c.streamMu.Lock()
	streams := make([]*Stream, 0, len(c.streams))
	for s := range c.streams {
		streams = append(streams, s)
	}
	c.streamMu.Unlock()
	for _, s := range streams {
		s.Close()
	}
	return nil
}
