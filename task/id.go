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
// Package task defines the identity and timestamp types shared across the
// probe, transport, and consumer layers of SchedLab.
package task

import (
	"bytes"
	"fmt"
)

// ID is a kernel-assigned task identifier. For process-scoped lifecycle
// events (exec, exit) this is the thread-group leader's id; for per-CPU
// timing events (wake, switch) it is the runnable entity's id directly.
type ID uint32

// UnknownID represents the absence of a task, or a disabled filter.
const UnknownID ID = 0

// Valid reports whether id refers to a real task.
func (id ID) Valid() bool {
	return id != UnknownID
}

func (id ID) String() string {
	if !id.Valid() {
		return "<none>"
	}
	return fmt.Sprintf("pid %d", uint32(id))
}

// Timestamp is a monotonic nanosecond clock sample, taken once per probe
// firing. It is approximately, but not strictly, ordered across CPUs.
type Timestamp uint64

func (ts Timestamp) String() string {
	return fmt.Sprintf("%d ns", uint64(ts))
}

// Sub returns ts-other as a signed duration in nanoseconds. Because
// timestamps from different CPUs are only approximately monotonic, callers
// comparing across tasks should tolerate small negative results.
func (ts Timestamp) Sub(other Timestamp) int64 {
	return int64(ts) - int64(other)
}

// NameSize is the fixed width of a task's short command name, matching the
// kernel's comm buffer.
const NameSize = 16

// Name is a NUL-padded short command string, read through the same
// zero-copy accessor discipline as the rest of an event's fields.
type Name [NameSize]byte

// NewName truncates or pads s to NameSize bytes.
func NewName(s string) Name {
	var n Name
	copy(n[:], s)
	return n
}

func (n Name) String() string {
	i := bytes.IndexByte(n[:], 0)
	if i < 0 {
		i = len(n)
	}
	return string(n[:i])
}
