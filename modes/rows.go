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
package modes

import (
	"fmt"

	"github.com/google/schedlab/aggregate"
	"github.com/google/schedlab/event"
)

// StreamRow is the raw-event row of the stream mode.
type StreamRow struct {
	TsNs    uint64  `json:"tsNs"`
	Type    string  `json:"type"`
	PID     uint32  `json:"pid"`
	Comm    string  `json:"comm"`
	PrevPID *uint32 `json:"prevPid,omitempty"`
	NextPID *uint32 `json:"nextPid,omitempty"`
	RunNs   *uint64 `json:"runNs,omitempty"`
	WaitNs  *uint64 `json:"waitNs,omitempty"`
}

func (r StreamRow) Text() string {
	return fmt.Sprintf("%d %-8s pid=%d comm=%q prev=%s next=%s run_ns=%s wait_ns=%s",
		r.TsNs, r.Type, r.PID, r.Comm, fmtOptU32(r.PrevPID), fmtOptU32(r.NextPID), fmtOptU64(r.RunNs), fmtOptU64(r.WaitNs))
}

func (r StreamRow) CSV() []string {
	return []string{
		fmt.Sprint(r.TsNs), r.Type, fmt.Sprint(r.PID), r.Comm,
		fmtOptU32(r.PrevPID), fmtOptU32(r.NextPID), fmtOptU64(r.RunNs), fmtOptU64(r.WaitNs),
	}
}

type streamProjection struct{}

func (streamProjection) Mode() Mode { return Stream }

func (streamProjection) CSVHeader() []string {
	return []string{"ts_ns", "type", "pid", "comm", "prev_pid", "next_pid", "run_ns", "wait_ns"}
}

func (streamProjection) Process(ev *event.Event, _ aggregate.Entry) (Row, bool) {
	r := StreamRow{TsNs: uint64(ev.Timestamp), Type: ev.Kind.String(), PID: uint32(ev.PID), Comm: ev.Name.String()}
	if ev.Kind == event.Switch && ev.Switch != nil {
		prev, next := uint32(ev.Switch.PrevPID), uint32(ev.Switch.NextPID)
		run, wait := ev.Switch.RunNs, ev.Switch.WaitNs
		r.PrevPID, r.NextPID, r.RunNs, r.WaitNs = &prev, &next, &run, &wait
	}
	return r, true
}

// LatencyRow is the latency-mode row.
type LatencyRow struct {
	TsNs      uint64 `json:"tsNs"`
	PID       uint32 `json:"pid"`
	LatencyNs uint64 `json:"latencyNs"`
}

func (r LatencyRow) Text() string {
	return fmt.Sprintf("%d pid=%d latency_ns=%d", r.TsNs, r.PID, r.LatencyNs)
}

func (r LatencyRow) CSV() []string {
	return []string{fmt.Sprint(r.TsNs), fmt.Sprint(r.PID), fmt.Sprint(r.LatencyNs)}
}

type latencyProjection struct{}

func (latencyProjection) Mode() Mode            { return Latency }
func (latencyProjection) CSVHeader() []string   { return []string{"ts_ns", "pid", "latency_ns"} }
func (latencyProjection) Process(ev *event.Event, _ aggregate.Entry) (Row, bool) {
	if ev.Kind != event.Switch || ev.Switch == nil {
		return nil, false
	}
	return LatencyRow{TsNs: uint64(ev.Timestamp), PID: uint32(ev.PID), LatencyNs: ev.Switch.WaitNs}, true
}

// FairnessRow is the fairness-mode row, carrying running totals from the
// aggregate rather than a single event's fields.
type FairnessRow struct {
	PID      uint32  `json:"pid"`
	RunMs    float64 `json:"runMs"`
	WaitMs   float64 `json:"waitMs"`
	Switches uint32  `json:"switches"`
}

func (r FairnessRow) Text() string {
	return fmt.Sprintf("pid=%d run_ms=%.3f wait_ms=%.3f switches=%d", r.PID, r.RunMs, r.WaitMs, r.Switches)
}

func (r FairnessRow) CSV() []string {
	return []string{fmt.Sprint(r.PID), fmt.Sprintf("%.3f", r.RunMs), fmt.Sprintf("%.3f", r.WaitMs), fmt.Sprint(r.Switches)}
}

type fairnessProjection struct{}

func (fairnessProjection) Mode() Mode          { return Fairness }
func (fairnessProjection) CSVHeader() []string { return []string{"pid", "run_ms", "wait_ms", "switches"} }
func (fairnessProjection) Process(ev *event.Event, snap aggregate.Entry) (Row, bool) {
	if ev.Kind != event.Switch {
		return nil, false
	}
	return FairnessRow{
		PID:      uint32(ev.PID),
		RunMs:    float64(snap.TotalRunNs) / 1e6,
		WaitMs:   float64(snap.TotalWaitNs) / 1e6,
		Switches: snap.Switches,
	}, true
}

// CtxRow is the ctx-mode row.
type CtxRow struct {
	TsNs    uint64 `json:"tsNs"`
	PrevPID uint32 `json:"prevPid"`
	NextPID uint32 `json:"nextPid"`
	RunNs   uint64 `json:"runNs"`
}

func (r CtxRow) Text() string {
	return fmt.Sprintf("%d %d->%d run_ns=%d", r.TsNs, r.PrevPID, r.NextPID, r.RunNs)
}

func (r CtxRow) CSV() []string {
	return []string{fmt.Sprint(r.TsNs), fmt.Sprint(r.PrevPID), fmt.Sprint(r.NextPID), fmt.Sprint(r.RunNs)}
}

type ctxProjection struct{}

func (ctxProjection) Mode() Mode          { return Ctx }
func (ctxProjection) CSVHeader() []string { return []string{"ts_ns", "prev_pid", "next_pid", "run_ns"} }
func (ctxProjection) Process(ev *event.Event, _ aggregate.Entry) (Row, bool) {
	if ev.Kind != event.Switch || ev.Switch == nil {
		return nil, false
	}
	return CtxRow{
		TsNs:    uint64(ev.Timestamp),
		PrevPID: uint32(ev.Switch.PrevPID),
		NextPID: uint32(ev.Switch.NextPID),
		RunNs:   ev.Switch.RunNs,
	}, true
}

// TimelineRow is the timeline-mode row.
type TimelineRow struct {
	TsNs      uint64  `json:"tsNs"`
	PID       uint32  `json:"pid"`
	Event     string  `json:"event"`
	WaitNs    *uint64 `json:"waitNs,omitempty"`
	RunPrevNs *uint64 `json:"runPrevNs,omitempty"`
}

func (r TimelineRow) Text() string {
	return fmt.Sprintf("%d pid=%d event=%s wait_ns=%s run_prev_ns=%s", r.TsNs, r.PID, r.Event, fmtOptU64(r.WaitNs), fmtOptU64(r.RunPrevNs))
}

func (r TimelineRow) CSV() []string {
	return []string{fmt.Sprint(r.TsNs), fmt.Sprint(r.PID), r.Event, fmtOptU64(r.WaitNs), fmtOptU64(r.RunPrevNs)}
}

type timelineProjection struct{}

func (timelineProjection) Mode() Mode { return Timeline }
func (timelineProjection) CSVHeader() []string {
	return []string{"ts_ns", "pid", "event", "wait_ns", "run_prev_ns"}
}

func (timelineProjection) Process(ev *event.Event, _ aggregate.Entry) (Row, bool) {
	switch ev.Kind {
	case event.Wake, event.Exec, event.Exit:
		return TimelineRow{TsNs: uint64(ev.Timestamp), PID: uint32(ev.PID), Event: ev.Kind.String()}, true
	case event.Switch:
		if ev.Switch == nil {
			return TimelineRow{TsNs: uint64(ev.Timestamp), PID: uint32(ev.PID), Event: ev.Kind.String()}, true
		}
		wait, run := ev.Switch.WaitNs, ev.Switch.RunNs
		return TimelineRow{TsNs: uint64(ev.Timestamp), PID: uint32(ev.PID), Event: ev.Kind.String(), WaitNs: &wait, RunPrevNs: &run}, true
	default:
		return nil, false
	}
}

// ShortLongRow is the shortlong-mode row, emitted once per EXIT.
type ShortLongRow struct {
	PID        uint32  `json:"pid"`
	LifetimeMs float64 `json:"lifetimeMs"`
	Wakes      uint32  `json:"wakes"`
	Switches   uint32  `json:"switches"`
}

func (r ShortLongRow) Text() string {
	return fmt.Sprintf("pid=%d lifetime_ms=%.3f wakes=%d switches=%d", r.PID, r.LifetimeMs, r.Wakes, r.Switches)
}

func (r ShortLongRow) CSV() []string {
	return []string{fmt.Sprint(r.PID), fmt.Sprintf("%.3f", r.LifetimeMs), fmt.Sprint(r.Wakes), fmt.Sprint(r.Switches)}
}

type shortLongProjection struct{}

func (shortLongProjection) Mode() Mode { return ShortLong }
func (shortLongProjection) CSVHeader() []string {
	return []string{"pid", "lifetime_ms", "wakes", "switches"}
}

func (shortLongProjection) Process(ev *event.Event, snap aggregate.Entry) (Row, bool) {
	if ev.Kind != event.Exit {
		return nil, false
	}
	var lifetimeMs float64
	if snap.HasFirstExec && snap.LastSeenNs > snap.FirstExecNs {
		lifetimeMs = float64(snap.LastSeenNs.Sub(snap.FirstExecNs)) / 1e6
	}
	return ShortLongRow{PID: uint32(ev.PID), LifetimeMs: lifetimeMs, Wakes: snap.Wakes, Switches: snap.Switches}, true
}

// StarvationRow is the starvation-mode row, emitted once per WAITLONG.
type StarvationRow struct {
	TsNs  uint64 `json:"tsNs"`
	PID   uint32 `json:"pid"`
	Event string `json:"event"`
}

func (r StarvationRow) Text() string {
	return fmt.Sprintf("%d pid=%d event=%s", r.TsNs, r.PID, r.Event)
}

func (r StarvationRow) CSV() []string {
	return []string{fmt.Sprint(r.TsNs), fmt.Sprint(r.PID), r.Event}
}

type starvationProjection struct{}

func (starvationProjection) Mode() Mode          { return Starvation }
func (starvationProjection) CSVHeader() []string { return []string{"ts_ns", "pid", "event"} }
func (starvationProjection) Process(ev *event.Event, _ aggregate.Entry) (Row, bool) {
	if ev.Kind != event.WaitLong {
		return nil, false
	}
	return StarvationRow{TsNs: uint64(ev.Timestamp), PID: uint32(ev.PID), Event: "wait_alert"}, true
}

// ForkRow is the fork-mode row.
type ForkRow struct {
	TsNs      uint64 `json:"tsNs"`
	ParentPID uint32 `json:"parentPid"`
	ChildPID  uint32 `json:"childPid"`
}

func (r ForkRow) Text() string {
	return fmt.Sprintf("%d parent=%d child=%d", r.TsNs, r.ParentPID, r.ChildPID)
}

func (r ForkRow) CSV() []string {
	return []string{fmt.Sprint(r.TsNs), fmt.Sprint(r.ParentPID), fmt.Sprint(r.ChildPID)}
}

type forkProjection struct{}

func (forkProjection) Mode() Mode          { return Fork }
func (forkProjection) CSVHeader() []string { return []string{"ts_ns", "parent_pid", "child_pid"} }
func (forkProjection) Process(ev *event.Event, _ aggregate.Entry) (Row, bool) {
	if ev.Kind != event.Fork || ev.Fork == nil {
		return nil, false
	}
	return ForkRow{TsNs: uint64(ev.Timestamp), ParentPID: uint32(ev.Fork.ParentPID), ChildPID: uint32(ev.Fork.ChildPID)}, true
}
