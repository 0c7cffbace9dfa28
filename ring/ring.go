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
// Package ring implements the bounded, lock-free, multi-producer/
// single-consumer transport that carries event frames from the probe layer
// to the user-space consumer.
//
// The slot layout (a fixed-size circular array of sequenced cells) follows
// the classic bounded MPMC queue construction, restricted here to a single
// consumer. Each cell holds one event frame of up to event.MaxFrameSize
// bytes plus its length; there are no record type tags and no padding or
// control records.
package ring

import (
	"sync/atomic"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/schedlab/event"
)

// DefaultCapacityBytes is the ring's default total capacity, matching the
// transport budget: enough to absorb bursts without unbounded growth.
const DefaultCapacityBytes = 512 * 1024

type cell struct {
	seq  atomic.Uint64
	n    int
	data [event.MaxFrameSize]byte
}

// Ring is a bounded, lock-free FIFO. Producers (one per CPU observing a
// scheduler transition) call Reserve concurrently; exactly one consumer
// calls Poll. Reservation never blocks: a full ring simply drops the
// record, per spec.
type Ring struct {
	cells []cell
	mask  uint64

	enqueuePos atomic.Uint64
	dequeuePos atomic.Uint64

	notify chan struct{}
}

// New allocates a Ring sized to hold at least capacityBytes worth of
// MaxFrameSize slots (rounded up to a power of two, as the slot index is
// derived by masking).
func New(capacityBytes int) (*Ring, error) {
	if capacityBytes <= 0 {
		return nil, status.Errorf(codes.InvalidArgument, "ring: capacity must be positive, got %d", capacityBytes)
	}
	n := (capacityBytes + event.MaxFrameSize - 1) / event.MaxFrameSize
	if n < 2 {
		n = 2
	}
	n = nextPowerOfTwo(n)

	r := &Ring{
		cells:  make([]cell, n),
		mask:   uint64(n - 1),
		notify: make(chan struct{}, 1),
	}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r, nil
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Reserve attempts to atomically publish encoded onto the ring. It returns
// false, without blocking or retrying indefinitely, if doing so would
// overflow the ring's capacity; the caller (a probe handler) must treat
// that as a silent, accepted drop.
func (r *Ring) Reserve(encoded []byte) bool {
	if len(encoded) > event.MaxFrameSize {
		return false
	}
	for {
		pos := r.enqueuePos.Load()
		c := &r.cells[pos&r.mask]
		seq := c.seq.Load()
		diff := int64(seq) - int64(pos)
		switch {
		case diff == 0:
			if r.enqueuePos.CompareAndSwap(pos, pos+1) {
				c.n = copy(c.data[:], encoded)
				c.seq.Store(pos + 1)
				select {
				case r.notify <- struct{}{}:
				default:
				}
				return true
			}
		case diff < 0:
			// The consumer hasn't freed this slot yet: the ring is full.
			return false
		default:
			// Another producer has already advanced the tail; reload and
			// retry against the new position.
		}
	}
}

// dequeue pops the oldest published record, if any. Safe for a single
// caller only.
func (r *Ring) dequeue() ([]byte, bool) {
	pos := r.dequeuePos.Load()
	c := &r.cells[pos&r.mask]
	seq := c.seq.Load()
	diff := int64(seq) - int64(pos+1)
	if diff != 0 {
		return nil, false
	}
	out := make([]byte, c.n)
	copy(out, c.data[:c.n])
	c.seq.Store(pos + r.mask + 1)
	r.dequeuePos.Store(pos + 1)
	return out, true
}

// Poll waits up to timeout for a record, returning it immediately if one is
// already available. It is the transport's only suspension point.
func (r *Ring) Poll(timeout time.Duration) ([]byte, bool) {
	if b, ok := r.dequeue(); ok {
		return b, true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-r.notify:
		if b, ok := r.dequeue(); ok {
			return b, true
		}
		return nil, false
	case <-timer.C:
		return nil, false
	}
}

// Len reports the number of unread records currently in the ring. It is
// approximate under concurrent producers but precise from the consumer's
// own viewpoint, since only it advances dequeuePos.
func (r *Ring) Len() int {
	return int(r.enqueuePos.Load() - r.dequeuePos.Load())
}

// Cap reports the ring's slot capacity.
func (r *Ring) Cap() int {
	return len(r.cells)
}
