// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/agentwire/agentwire"
	"github.com/agentwire/agentwire/client/internal/sse"
)

// Stream is one live event stream for a task. Frames are decoded and
// folded into the tracker as they arrive; the stream finishes when
// the task reaches a terminal state, the connection drops, or the
// caller closes it.
type Stream struct {
	reqTaskID   string
	tracker     *Tracker
	logger      *slog.Logger
	report      func(error)
	body        io.ReadCloser
	dec         *sse.Decoder
	idleTimeout time.Duration
	cancel      context.CancelFunc
	onFinish    func(*Stream)

	mu       sync.Mutex
	taskID   string
	snap     Snapshot
	haveSnap bool
	err      error
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
	watchOnce sync.Once
	idle      atomic.Bool
	released  atomic.Bool
}

func newStream(reqTaskID string, tracker *Tracker, logger *slog.Logger, report func(error), body io.ReadCloser, maxFrameSize int, idleTimeout time.Duration, cancel context.CancelFunc, onFinish func(*Stream)) *Stream {
	s := &Stream{
		reqTaskID:   reqTaskID,
		tracker:     tracker,
		logger:      logger,
		report:      report,
		body:        body,
		dec:         sse.NewDecoder(maxFrameSize),
		idleTimeout: idleTimeout,
		cancel:      cancel,
		onFinish:    onFinish,
		taskID:      reqTaskID,
		done:        make(chan struct{}),
	}
	if reqTaskID != "" {
		s.watchTerminal(reqTaskID)
	}
	go s.run()
	return s
}

// watchTerminal releases the connection once the tracker records a
// terminal state for the task, even when that state arrived through
// another reply or stream. Started once, as soon as the task id is
// known.
func (s *Stream) watchTerminal(taskID string) {
	s.watchOnce.Do(func() {
		go func() {
			select {
			case <-s.tracker.Done(taskID):
				s.released.Store(true)
				s.body.Close()
			case <-s.done:
			}
		}()
	})
}

// newReplyStream wraps a single non-streamed reply in an already
// finished Stream, for servers that answer a stream request with one
// JSON body.
func newReplyStream(snap Snapshot) *Stream {
	s := &Stream{
		taskID:   snap.Task.ID,
		snap:     snap,
		haveSnap: true,
		done:     make(chan struct{}),
	}
	s.closeOnce.Do(func() { close(s.done) })
	return s
}

func (s *Stream) run() {
	defer s.finish()

	var timer *time.Timer
	if s.idleTimeout > 0 {
		// The watchdog tears down the connection; keep-alive frames
		// reset it like any other bytes.
		timer = time.AfterFunc(s.idleTimeout, func() {
			s.idle.Store(true)
			s.body.Close()
		})
		defer timer.Stop()
	}

	buf := make([]byte, 4096)
	for {
		n, err := s.body.Read(buf)
		if n > 0 {
			if timer != nil {
				timer.Reset(s.idleTimeout)
			}
			frames, ferr := s.dec.Feed(buf[:n])
			for _, f := range frames {
				if s.handleFrame(f) {
					s.setErr(nil)
					return
				}
			}
			if ferr != nil {
				s.fail(&Error{Kind: KindFrameTooLarge, Op: "stream", Err: ferr})
				return
			}
		}
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			switch {
			case closed:
				s.setErr(nil)
			case s.released.Load():
				// The task reached a terminal state through another
				// reply or stream; this connection is done cleanly.
				if snap, ok := s.tracker.Task(s.TaskID()); ok {
					s.mu.Lock()
					s.snap, s.haveSnap = snap, true
					s.mu.Unlock()
				}
				s.setErr(nil)
			case s.idle.Load():
				s.fail(newError(KindStreamInterrupted, "stream", fmt.Errorf("no bytes within %v", s.idleTimeout)))
			case errors.Is(err, io.EOF):
				s.fail(newError(KindStreamInterrupted, "stream", fmt.Errorf("connection closed before terminal status")))
			default:
				s.fail(newError(KindStreamInterrupted, "stream", err))
			}
			return
		}
	}
}

// handleFrame decodes one frame payload and applies it. A frame that
// fails to parse or apply is reported and skipped; the stream
// continues. It returns true when the task reached a terminal state.
func (s *Stream) handleFrame(f sse.Frame) (terminal bool) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}
	var resp agentwire.Response
	if err := json.Unmarshal(f.Data, &resp); err != nil {
		s.reportErr(newError(KindMalformedFrame, "stream", err))
		return false
	}
	snap, err := s.tracker.Apply(s.reqTaskID, &resp)
	if err != nil {
		s.reportErr(Classify("stream", err))
		return false
	}
	s.mu.Lock()
	if s.taskID == "" {
		s.taskID = snap.Task.ID
	}
	taskID := s.taskID
	s.snap, s.haveSnap = snap, true
	s.mu.Unlock()
	if taskID != "" && !snap.Terminal {
		s.watchTerminal(taskID)
	}
	return snap.Terminal
}

func (s *Stream) fail(err error) {
	s.mu.Lock()
	taskID := s.taskID
	s.mu.Unlock()
	if taskID != "" {
		if snap, ok := s.tracker.MarkInterrupted(taskID); ok {
			s.mu.Lock()
			s.snap, s.haveSnap = snap, true
			s.mu.Unlock()
		}
	}
	s.reportErr(err)
	s.setErr(err)
}

func (s *Stream) reportErr(err error) {
	if s.logger != nil {
		s.logger.Warn("stream error", slog.String("task_id", s.TaskID()), slog.Any("error", err))
	}
	if s.report != nil {
		s.report(err)
	}
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Stream) finish() {
	s.body.Close()
	if s.cancel != nil {
		s.cancel()
	}
	if s.onFinish != nil {
		s.onFinish(s)
	}
	s.closeOnce.Do(func() { close(s.done) })
}

// TaskID returns the id of the task this stream follows, or "" if no
// event identified one yet.
func (s *Stream) TaskID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskID
}

// Snapshot returns the most recent applied snapshot.
func (s *Stream) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.haveSnap
}

// Done returns a channel closed when the stream has finished for any
// reason.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error of a finished stream. It is nil
// when the task completed or the caller closed the stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Wait blocks until the stream finishes or ctx is done, and returns
// the final snapshot.
func (s *Stream) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-ctx.Done():
		snap, _ := s.Snapshot()
		return snap, ctx.Err()
	case <-s.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap, s.err
}

// Close tears down the stream. It is idempotent and safe to call
// concurrently with the read loop; no further events are applied
// after it returns and the read loop observes the closed body.
func (s *Stream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.body != nil {
		s.body.Close()
	} else {
		s.closeOnce.Do(func() { close(s.done) })
	}
	return nil
}
