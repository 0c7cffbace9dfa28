//
// Copyright 2026 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS-IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
//
// Package replay implements the recorded-fixture round-trip mechanism:
// feeding a previously captured sequence of ring-buffer-framed event
// records back through the consumer, producing identical output to the
// original live run.
//
// Fixture framing is a length-prefixed record stream — a big-endian uint16
// byte count followed by the frame — in the same spirit as the ring
// transport's length-carrying cells, adapted here for sequential file
// storage rather than a fixed-size circular buffer.
package replay

import (
	"bufio"
	"encoding/binary"
	"io"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/schedlab/event"
)

// Writer captures a sequence of event frames to a fixture stream.
type Writer struct {
	w *bufio.Writer
}

// NewWriter wraps w as a fixture writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// WriteFrame appends an already-encoded event frame (as produced by
// (*event.Event).Marshal) to the fixture.
func (fw *Writer) WriteFrame(frame []byte) error {
	if len(frame) > 0xFFFF {
		return status.Errorf(codes.InvalidArgument, "replay: frame too large: %d bytes", len(frame))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(frame)))
	if _, err := fw.w.Write(lenBuf[:]); err != nil {
		return status.Errorf(codes.Internal, "replay: write length: %v", err)
	}
	if _, err := fw.w.Write(frame); err != nil {
		return status.Errorf(codes.Internal, "replay: write frame: %v", err)
	}
	return nil
}

// WriteEvent encodes and appends ev.
func (fw *Writer) WriteEvent(ev *event.Event) error {
	return fw.WriteFrame(ev.Marshal())
}

// Flush writes any buffered fixture data to the underlying writer.
func (fw *Writer) Flush() error {
	if err := fw.w.Flush(); err != nil {
		return status.Errorf(codes.Internal, "replay: flush: %v", err)
	}
	return nil
}

// Reader replays a fixture written by Writer. It implements the same
// Poll(timeout) ([]byte, bool) surface the ring transport exposes to the
// consumer, so a consumer.Consumer can be driven from a recorded fixture
// exactly as it would be from a live ring.
type Reader struct {
	r         *bufio.Reader
	mu        sync.Mutex
	exhausted bool
	doneOnce  sync.Once
	doneCh    chan struct{}
}

// NewReader wraps r as a fixture reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r), doneCh: make(chan struct{})}
}

// Poll returns the next recorded frame, ignoring timeout: a fixture has no
// wait to perform, it either has a next frame or it doesn't. Once the
// fixture is exhausted, Poll always returns (nil, false) and Done is
// closed.
func (fr *Reader) Poll(_ time.Duration) ([]byte, bool) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fr.exhausted {
		return nil, false
	}
	var lenBuf [2]byte
	if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
		fr.markExhausted()
		return nil, false
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	frame := make([]byte, n)
	if _, err := io.ReadFull(fr.r, frame); err != nil {
		fr.markExhausted()
		return nil, false
	}
	return frame, true
}

func (fr *Reader) markExhausted() {
	fr.exhausted = true
	fr.doneOnce.Do(func() { close(fr.doneCh) })
}

// Done returns a channel that is closed once the fixture has been fully
// consumed. Callers drive a consumer against a Reader and cancel its
// context when Done fires.
func (fr *Reader) Done() <-chan struct{} {
	return fr.doneCh
}
