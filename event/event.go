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
// Package event defines SchedLab's fixed-schema event record: the tagged
// variant that the probe layer emits and the ring transport carries.
package event

import (
	"fmt"

	"github.com/google/schedlab/task"
)

// Kind identifies which scheduler transition an Event describes.
type Kind uint8

const (
	// Wake fires when a task becomes runnable.
	Wake Kind = iota
	// Switch fires on every scheduler switch, carrying both sides.
	Switch
	// Exec fires every time a thread-group leader execs.
	Exec
	// Exit fires on thread-group-leader exit.
	Exit
	// Fork fires once per process creation (the fork extension).
	Fork
	// WaitLong fires alongside a Switch whose wait_ns met the alert
	// threshold; it is emitted immediately before that Switch event.
	WaitLong
)

func (k Kind) String() string {
	switch k {
	case Wake:
		return "WAKE"
	case Switch:
		return "SWITCH"
	case Exec:
		return "EXEC"
	case Exit:
		return "EXIT"
	case Fork:
		return "FORK"
	case WaitLong:
		return "WAITLONG"
	default:
		return "UNKNOWN"
	}
}

// SwitchPayload carries both sides of a scheduler switch. It is populated
// only on Switch events.
type SwitchPayload struct {
	PrevPID, NextPID   task.ID
	PrevName, NextName task.Name
	RunNs, WaitNs      uint64
	PrevCPU, NextCPU   int32
}

// ForkPayload carries the parent/child pair of a process creation. It is
// populated only on Fork events.
//
// This is a distinct type from SwitchPayload by design: the source this
// spec is drawn from reused the switch payload's prev_pid/next_pid fields to
// carry parent/child, which left a field whose name no longer described its
// contents. SchedLab gives fork its own named fields instead.
type ForkPayload struct {
	ParentPID, ChildPID   task.ID
	ParentName, ChildName task.Name
}

// Event is the fixed-schema record produced by every probe firing. Payload
// is non-nil only for Switch (SwitchPayload) and Fork (ForkPayload); all
// other kinds carry only the header fields.
type Event struct {
	Timestamp task.Timestamp
	Kind      Kind
	PID       task.ID
	Name      task.Name
	Switch    *SwitchPayload
	Fork      *ForkPayload
}

// String renders a human-readable line for ev, in the vein of a raw
// tracepoint dump: a fixed-width prefix of timestamp and kind, followed by
// kind-specific detail.
func (ev *Event) String() string {
	prefix := fmt.Sprintf("[%20s] %-8s ", ev.Timestamp, ev.Kind)
	switch ev.Kind {
	case Switch:
		p := ev.Switch
		return fmt.Sprintf("%sPID %d ('%s') -> PID %d ('%s') run=%dns wait=%dns cpu %d->%d",
			prefix, p.PrevPID, p.PrevName, p.NextPID, p.NextName, p.RunNs, p.WaitNs, p.PrevCPU, p.NextCPU)
	case Fork:
		f := ev.Fork
		return fmt.Sprintf("%sparent PID %d ('%s') forked child PID %d ('%s')",
			prefix, f.ParentPID, f.ParentName, f.ChildPID, f.ChildName)
	case Wake, Exec, Exit, WaitLong:
		return fmt.Sprintf("%sPID %d ('%s')", prefix, ev.PID, ev.Name)
	default:
		return fmt.Sprintf("NON-SCHED kind=%d pid=%d", ev.Kind, ev.PID)
	}
}
