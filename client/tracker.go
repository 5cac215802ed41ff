// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/go-json-experiment/json"

	"github.com/agentwire/agentwire"
)

// Snapshot is an immutable view of one task, handed to callers after
// every applied event. Mutating a Snapshot never affects the tracked
// state.
type Snapshot struct {
	// Task is the task as last observed.
	Task agentwire.Task
	// DisplayText is the text of the most recent status message. Each
	// status event replaces it.
	DisplayText string
	// ArtifactText is the accumulated text of streamed artifact
	// chunks, in arrival order.
	ArtifactText string
	// ArtifactFrozen reports whether a lastChunk event closed artifact
	// accumulation.
	ArtifactFrozen bool
	// Terminal reports whether the task reached completed, failed or
	// canceled, or an event carried final=true.
	Terminal bool
	// Interrupted reports whether the task's stream dropped before a
	// terminal status. The task keeps its last known state; it is
	// never fabricated as completed.
	Interrupted bool
}

// Tracker consumes decoded replies and frames and maintains the
// authoritative task and conversation state for one session. Events
// for a given task are applied in strict arrival order; the tracker
// is the single writer of the conversation context id.
type Tracker struct {
	logger *slog.Logger

	mu        sync.Mutex
	contextID string
	history   []agentwire.Message
	tasks     map[string]*taskRecord
	done      map[string]chan struct{}
	subs      map[string]map[int]func(Snapshot)
	nextSub   int
}

type taskRecord struct {
	task           agentwire.Task
	displayText    string
	artifactText   string
	artifactFrozen bool
	terminal       bool
	interrupted    bool
}

func (r *taskRecord) snapshot() Snapshot {
	task := r.task
	// Part values behind the pointers stay shared; they are never
	// mutated after decode.
	if m := task.Status.Message; m != nil {
		cm := *m
		cm.Parts = slices.Clone(m.Parts)
		task.Status.Message = &cm
	}
	task.Artifacts = slices.Clone(r.task.Artifacts)
	for i := range task.Artifacts {
		task.Artifacts[i].Parts = slices.Clone(task.Artifacts[i].Parts)
	}
	return Snapshot{
		Task:           task,
		DisplayText:    r.displayText,
		ArtifactText:   r.artifactText,
		ArtifactFrozen: r.artifactFrozen,
		Terminal:       r.terminal,
		Interrupted:    r.interrupted,
	}
}

// NewTracker creates a Tracker logging through logger
// (slog.Default if nil).
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		logger: logger,
		tasks:  make(map[string]*taskRecord),
		done:   make(map[string]chan struct{}),
		subs:   make(map[string]map[int]func(Snapshot)),
	}
}

// ContextID returns the conversation context id assigned by the
// remote side, or "" if none was observed yet.
func (t *Tracker) ContextID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contextID
}

// RecordMessage appends one outbound message to the conversation
// history.
func (t *Tracker) RecordMessage(msg agentwire.Message) {
	t.mu.Lock()
	t.history = append(t.history, msg)
	t.mu.Unlock()
}

// History returns the conversation so far: outbound messages and
// agent status messages, in arrival order. The history lives only for
// the lifetime of the session.
func (t *Tracker) History() []agentwire.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.history)
}

// Task returns the current snapshot for a task id.
func (t *Tracker) Task(taskID string) (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.tasks[taskID]
	if !ok {
		return Snapshot{}, false
	}
	return rec.snapshot(), true
}

// Done returns a channel closed the moment the task reaches a
// terminal state. It is the completion signal managed streams release
// their connection on.
func (t *Tracker) Done(taskID string) <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.doneLocked(taskID)
}

func (t *Tracker) doneLocked(taskID string) chan struct{} {
	ch, ok := t.done[taskID]
	if !ok {
		ch = make(chan struct{})
		t.done[taskID] = ch
	}
	return ch
}

// Subscribe registers fn to observe every subsequent snapshot of the
// task. The returned cancel func deterministically stops delivery and
// is idempotent.
func (t *Tracker) Subscribe(taskID string, fn func(Snapshot)) (cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextSub
	t.nextSub++
	if t.subs[taskID] == nil {
		t.subs[taskID] = make(map[int]func(Snapshot))
	}
	t.subs[taskID][id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs[taskID], id)
	}
}

// Apply validates one reply or decoded frame and folds it into the
// task it addresses. reqTaskID is the id supplied on the outbound
// request, used as the last resort for task-id extraction. It returns
// the updated snapshot, the envelope's RPC error, or a
// ProtocolViolation.
func (t *Tracker) Apply(reqTaskID string, resp *agentwire.Response) (Snapshot, error) {
	if resp == nil {
		return Snapshot{}, newError(KindProtocolViolation, "apply", fmt.Errorf("nil envelope"))
	}
	if err := resp.Validate(); err != nil {
		return Snapshot{}, newError(KindProtocolViolation, "apply", err)
	}
	if resp.Error != nil {
		return Snapshot{}, resp.Error
	}

	var ev agentwire.TaskEvent
	if err := json.Unmarshal(resp.Result, &ev); err != nil {
		return Snapshot{}, newError(KindProtocolViolation, "apply", fmt.Errorf("result is not task-shaped: %w", err))
	}

	// Fixed extraction priority: event task id, then result id, then
	// the id from the outbound request.
	taskID := ev.TaskID
	if taskID == "" {
		taskID = ev.ID
	}
	if taskID == "" {
		taskID = reqTaskID
	}
	if taskID == "" {
		return Snapshot{}, newError(KindProtocolViolation, "apply", fmt.Errorf("event carries no task id"))
	}

	t.mu.Lock()
	rec, ok := t.tasks[taskID]
	if !ok {
		rec = &taskRecord{task: agentwire.Task{
			ID:     taskID,
			Status: agentwire.TaskStatus{State: agentwire.TaskStateSubmitted},
		}}
		t.tasks[taskID] = rec
	}

	if ev.ContextID != "" {
		t.contextID = ev.ContextID
		rec.task.ContextID = ev.ContextID
	}

	if ev.Status != nil {
		if !ev.Status.State.Valid() {
			t.mu.Unlock()
			return Snapshot{}, newError(KindProtocolViolation, "apply", fmt.Errorf("unknown task state %q", ev.Status.State))
		}
		if rec.terminal {
			t.logger.Debug("ignoring status event for terminal task",
				slog.String("task_id", taskID), slog.String("state", string(ev.Status.State)))
		} else {
			rec.task.Status = *ev.Status
			if ev.Status.Message != nil {
				// Replace, never append: each status event carries the
				// whole current display text.
				rec.displayText = agentwire.TextContent(ev.Status.Message.Parts)
				t.history = append(t.history, *ev.Status.Message)
			}
		}
	}

	if ev.Artifacts != nil {
		rec.task.Artifacts = slices.Clone(ev.Artifacts)
	}
	if ev.Artifact != nil {
		if rec.artifactFrozen {
			t.logger.Warn("ignoring artifact chunk after lastChunk",
				slog.String("task_id", taskID))
		} else {
			rec.artifactText += agentwire.TextContent(ev.Artifact.Parts)
			rec.task.Artifacts = append(rec.task.Artifacts, *ev.Artifact)
			if ev.Artifact.LastChunk {
				rec.artifactFrozen = true
			}
		}
	}

	if ev.Final {
		rec.task.Final = true
	}
	if !rec.terminal && (rec.task.Status.State.Terminal() || ev.Final) {
		rec.terminal = true
		t.logger.Debug("task reached terminal state",
			slog.String("task_id", taskID), slog.String("state", string(rec.task.Status.State)))
		close(t.doneLocked(taskID))
	}

	snap := rec.snapshot()
	fns := t.subscribersLocked(taskID)
	t.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	return snap, nil
}

// MarkInterrupted flags a task whose stream dropped without a
// terminal status. The last known state is kept.
func (t *Tracker) MarkInterrupted(taskID string) (Snapshot, bool) {
	t.mu.Lock()
	rec, ok := t.tasks[taskID]
	if !ok {
		t.mu.Unlock()
		return Snapshot{}, false
	}
	if !rec.terminal {
		rec.interrupted = true
	}
	snap := rec.snapshot()
	fns := t.subscribersLocked(taskID)
	t.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
	return snap, true
}

func (t *Tracker) subscribersLocked(taskID string) []func(Snapshot) {
	subs := t.subs[taskID]
	if len(subs) == 0 {
		return nil
	}
	fns := make([]func(Snapshot), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return fns
}
