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
// Package orderlogic checks a recorded event.Event stream against the
// per-CPU strict-timestamp-ordering invariant: on any one CPU, events must
// be submitted in strictly increasing timestamp order.
//
// The check is expressed as an ltl.Operator: a token stream is folded
// through ltl.Match one token at a time, and each step's ltl.Environment
// reports whether the invariant held for that token. Bind-and-reference
// matching only compares bound values for equality, which cannot express
// "strictly greater than", so the operator here carries its own per-CPU
// timestamp state across Match calls instead of using a bind-and-reference
// expression.
package orderlogic

import (
	"fmt"
	"strconv"
	"testing"

	be "github.com/ilhamster/ltl/pkg/bindingenvironment"
	"github.com/ilhamster/ltl/pkg/ltl"

	"github.com/google/schedlab/event"
	"github.com/google/schedlab/task"
)

// Token wraps one recorded event for ltl matching, carrying the CPU it was
// recorded on alongside its position in the stream being checked.
type Token struct {
	Index int
	Event *event.Event
	CPU   int32
}

// EOI is always false: a fixed slice of recorded events has no end-of-input
// token of its own.
func (t Token) EOI() bool { return false }

func (t Token) String() string { return strconv.Itoa(t.Index) }

// cpuOrder is a stateful ltl.Operator asserting that every token it sees on
// cpu carries a strictly later timestamp than the last token it saw on that
// cpu. Tokens on other CPUs pass through without affecting the match state.
type cpuOrder struct {
	cpu     int32
	lastTs  task.Timestamp
	hasLast bool
}

// NewCPUOrder returns the initial state of the per-CPU ordering operator for
// cpu.
func NewCPUOrder(cpu int32) ltl.Operator {
	return cpuOrder{cpu: cpu}
}

func (o cpuOrder) String() string {
	return fmt.Sprintf("cpu[%d].timestamp strictly increasing", o.cpu)
}

// Reducible reports true: cpuOrder has no sub-operators left to reduce.
func (o cpuOrder) Reducible() bool { return true }

// Match implements ltl.Operator.
func (o cpuOrder) Match(tok ltl.Token) (ltl.Operator, ltl.Environment) {
	t, ok := tok.(Token)
	if !ok {
		return nil, ltl.ErrEnv(fmt.Errorf("orderlogic: got token of type %T, want Token", tok))
	}
	if t.CPU != o.cpu {
		return o, be.New(be.Matching(true))
	}
	ts := t.Event.Timestamp
	matched := !o.hasLast || ts > o.lastTs
	return cpuOrder{cpu: o.cpu, lastTs: ts, hasLast: true}, be.New(be.Matching(matched))
}

// Violation describes one ordering failure: an event recorded on CPU whose
// timestamp did not strictly exceed the previous event recorded on that same
// CPU.
type Violation struct {
	CPU   int32
	Index int
	Prev  task.Timestamp
	Got   task.Timestamp
}

// CheckStrictOrder walks events once per distinct CPU present among them,
// folding that CPU's subsequence through a cpuOrder operator, and reports
// every token where the invariant failed.
func CheckStrictOrder(events []*event.Event, cpuOf func(*event.Event) int32) []Violation {
	cpus := map[int32]bool{}
	for _, ev := range events {
		cpus[cpuOf(ev)] = true
	}

	var violations []Violation
	for cpu := range cpus {
		var op ltl.Operator = NewCPUOrder(cpu)
		var prev task.Timestamp
		for i, ev := range events {
			c := cpuOf(ev)
			tok := Token{Index: i, Event: ev, CPU: c}
			var env ltl.Environment
			op, env = ltl.Match(op, tok)
			if env.Err() != nil {
				continue
			}
			if c == cpu && !env.Matching() {
				violations = append(violations, Violation{CPU: cpu, Index: i, Prev: prev, Got: ev.Timestamp})
			}
			if c == cpu {
				prev = ev.Timestamp
			}
		}
	}
	return violations
}

// AssertStrictOrder fails tb if events violate the per-CPU strict-ordering
// invariant, reporting every violation found. It is meant for use from
// other packages' tests against recorded or replayed event streams.
func AssertStrictOrder(tb testing.TB, events []*event.Event, cpuOf func(*event.Event) int32) {
	tb.Helper()
	for _, v := range CheckStrictOrder(events, cpuOf) {
		tb.Errorf("orderlogic: cpu %d: event at index %d has timestamp %d, want > %d", v.CPU, v.Index, v.Got, v.Prev)
	}
}
