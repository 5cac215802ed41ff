// Copyright 2025 The Agentwire Authors
// SPDX-License-Identifier: Apache-2.0

// Package sse implements incremental decoding of Server-Sent-Events
// frames. The decoder is push-based: the transport feeds it raw
// chunks in arrival order, split at arbitrary byte boundaries, and it
// yields only complete frames.
package sse

import (
	"bytes"
	"errors"
)

// DefaultMaxFrameSize bounds an unterminated frame. The value is a
// tunable, not a protocol constant.
const DefaultMaxFrameSize = 1 << 20

// keepAlivePayload is the literal ping marker; frames carrying it are
// dropped as no-ops.
const keepAlivePayload = "ping"

// ErrFrameTooLarge is returned when no frame boundary was found
// within the configured maximum. The stream cannot be resynchronized
// after this; truncating the buffer instead could cut a JSON payload
// mid-value.
var ErrFrameTooLarge = errors.New("sse: unterminated frame exceeds maximum size")

// Frame is one complete data frame extracted from the stream.
type Frame struct {
	// Data is the frame payload: the joined data lines, undecoded.
	Data []byte
}

// Decoder accumulates chunks and extracts complete frames. A frame
// ends at a blank line (LF or CRLF pairs). One Decoder serves exactly
// one stream; it holds no state across streams.
type Decoder struct {
	buf    []byte
	scan   int // first buffered index not yet scanned for a boundary
	max    int
	failed bool
}

// NewDecoder creates a Decoder bounding unterminated frames at
// maxFrameSize bytes (DefaultMaxFrameSize if <= 0).
func NewDecoder(maxFrameSize int) *Decoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{max: maxFrameSize}
}

// Feed appends one chunk and returns every frame completed by it, in
// order. Keep-alive frames are consumed silently. The only error is
// ErrFrameTooLarge, which is fatal: all subsequent calls fail.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	if d.failed {
		return nil, ErrFrameTooLarge
	}
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	for {
		end, next := d.findBoundary()
		if end < 0 {
			if len(d.buf) > d.max {
				d.failed = true
				return frames, ErrFrameTooLarge
			}
			return frames, nil
		}
		raw := d.buf[:end]
		if f, ok := parseFrame(raw); ok {
			frames = append(frames, f)
		}
		// Consume through the blank line. copy handles the overlap.
		d.buf = d.buf[:copy(d.buf, d.buf[next:])]
		d.scan = 0
	}
}

// findBoundary scans forward from the cursor for a blank line. It
// returns the index where the frame ends and the index where the next
// frame begins, or (-1, -1) if no boundary is buffered yet. The
// cursor is advanced so already scanned bytes are not revisited.
func (d *Decoder) findBoundary() (end, next int) {
	for i := d.scan; i < len(d.buf); i++ {
		if d.buf[i] != '\n' {
			continue
		}
		if i+1 >= len(d.buf) {
			// Terminator may continue in the next chunk.
			d.scan = i
			return -1, -1
		}
		switch d.buf[i+1] {
		case '\n':
			return i, i + 2
		case '\r':
			if i+2 >= len(d.buf) {
				d.scan = i
				return -1, -1
			}
			if d.buf[i+2] == '\n' {
				return i, i + 3
			}
		}
	}
	if d.scan = len(d.buf) - 2; d.scan < 0 {
		d.scan = 0
	}
	return -1, -1
}

// parseFrame extracts the payload from one raw frame. It returns
// false for frames that decode to nothing: comment-only frames and
// the keep-alive marker.
func parseFrame(raw []byte) (Frame, bool) {
	var data []byte
	for line := range bytes.Lines(raw) {
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 || line[0] == ':' {
			continue
		}
		rest, ok := bytes.CutPrefix(line, []byte("data:"))
		if !ok {
			// Other SSE fields (event, id, retry) carry no payload here.
			continue
		}
		rest = bytes.TrimPrefix(rest, []byte(" "))
		if data != nil {
			data = append(data, '\n')
		}
		data = append(data, rest...)
	}
	if data == nil || string(data) == keepAlivePayload {
		return Frame{}, false
	}
	return Frame{Data: data}, true
}
