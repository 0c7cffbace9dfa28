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

//go:build linux

// Package probe implements the five typed scheduler entry points: wake,
// switch, exec, exit, and the fork extension.
//
// Each method here stands in for a tracepoint callback running in kernel
// tracing context: limited stack, no blocking, strict memory-access
// discipline. A real deployment compiles these as BPF programs (via
// bpf2go) and attaches them with cilium/ebpf/link.Tracepoint; this module
// carries no compiled bytecode; instead Probes exposes the identical
// read/compute/update/emit sequence as plain Go methods over the same
// cilium/ebpf-backed maps (schedconfig, statetable, aggregate) a real
// attachment would use, so a future bpf2go backend can call straight into
// this logic from real callbacks without changing it.
package probe

import (
	"time"

	log "github.com/golang/glog"

	"github.com/google/schedlab/aggregate"
	"github.com/google/schedlab/event"
	"github.com/google/schedlab/schedconfig"
	"github.com/google/schedlab/statetable"
	"github.com/google/schedlab/task"
)

// configReader is the slice of schedconfig.Store's API a Probes depends on.
type configReader interface {
	Read() (schedconfig.Record, error)
}

// stampTable is the slice of statetable.Table's API a Probes depends on.
type stampTable interface {
	Set(id task.ID, ts task.Timestamp) error
	Get(id task.ID) (task.Timestamp, bool, error)
	GetAndDelete(id task.ID) (task.Timestamp, bool, error)
	Delete(id task.ID) error
}

// kernelAgg is the slice of aggregate.Kernel's API a Probes depends on.
type kernelAgg interface {
	AddWake(id task.ID) error
	AddSwitchOut(id task.ID, runNs uint64) error
	AddSwitchIn(id task.ID, waitNs uint64) error
	SetFirstExec(id task.ID, ts task.Timestamp) error
}

// Clock samples the monotonic nanosecond clock. Tests substitute a
// deterministic clock; production uses WallClock.
type Clock func() task.Timestamp

// clockBase anchors WallClock's monotonic readings.
var clockBase = time.Now()

// WallClock is the production Clock: nanoseconds elapsed on Go's monotonic
// clock since this package was initialized.
func WallClock() task.Timestamp {
	return task.Timestamp(time.Since(clockBase))
}

// Emitter is the transport a Probes instance reserves encoded event frames
// into. Ring implements this.
type Emitter interface {
	Reserve(encoded []byte) bool
}

// Probes holds the shared state every handler reads and updates: the
// configuration slot, the two per-task timing tables, the kernel-side
// aggregate, and the ring transport.
type Probes struct {
	Config configReader
	Wake   stampTable
	OnCPU  stampTable
	Agg    kernelAgg
	Ring   Emitter
	Now    Clock
}

// New constructs a Probes with the production wall clock.
func New(cfg *schedconfig.Store, wake, onCPU *statetable.Table, agg *aggregate.Kernel, ring Emitter) *Probes {
	return &Probes{Config: cfg, Wake: wake, OnCPU: onCPU, Agg: agg, Ring: ring, Now: WallClock}
}

func (p *Probes) emit(ev *event.Event) {
	if !p.Ring.Reserve(ev.Marshal()) {
		log.V(2).Infof("probe: dropped %s event for %v: ring full", ev.Kind, ev.PID)
	}
}

func (p *Probes) readConfig() schedconfig.Record {
	cfg, err := p.Config.Read()
	if err != nil {
		log.Errorf("probe: config read failed, proceeding unfiltered: %v", err)
		return schedconfig.Record{}
	}
	return cfg
}

// OnWake handles a task becoming runnable.
func (p *Probes) OnWake(id task.ID, name task.Name) {
	now := p.Now()
	cfg := p.readConfig()
	if cfg.FilterPID != 0 && uint32(id) != cfg.FilterPID {
		return
	}

	// Unconditional overwrite: any previously unconsumed wake is replaced.
	if err := p.Wake.Set(id, now); err != nil {
		log.V(2).Infof("probe: wake table full, dropping stamp for %v: %v", id, err)
	}
	if err := p.Agg.AddWake(id); err != nil {
		log.V(2).Infof("probe: aggregate table full, dropping wake count for %v: %v", id, err)
	}
	p.emit(&event.Event{Timestamp: now, Kind: event.Wake, PID: id, Name: name})
}

// SwitchInput is the input to OnSwitch: the preempted flag, both sides of
// the switch, and the reporting CPU.
type SwitchInput struct {
	Preempted bool
	PrevPID   task.ID
	PrevName  task.Name
	PrevState int8
	NextPID   task.ID
	NextName  task.Name
	CPU       int32
}

// OnSwitch handles a scheduler switch between two tasks.
func (p *Probes) OnSwitch(in SwitchInput) {
	now := p.Now()
	cfg := p.readConfig()
	if cfg.FilterPID != 0 {
		fp := task.ID(cfg.FilterPID)
		if in.PrevPID != fp && in.NextPID != fp {
			return
		}
	}

	var runNs uint64
	if in.PrevPID.Valid() {
		if stamp, ok, err := p.OnCPU.Get(in.PrevPID); err == nil && ok {
			runNs = deltaNs(now, stamp)
		}
	}

	var waitNs uint64
	if in.NextPID.Valid() {
		if stamp, ok, err := p.Wake.GetAndDelete(in.NextPID); err == nil && ok {
			waitNs = deltaNs(now, stamp)
		}
		if err := p.OnCPU.Set(in.NextPID, now); err != nil {
			log.V(2).Infof("probe: on-cpu table full, dropping stamp for %v: %v", in.NextPID, err)
		}
	}

	if in.PrevPID.Valid() {
		if err := p.Agg.AddSwitchOut(in.PrevPID, runNs); err != nil {
			log.V(2).Infof("probe: aggregate table full, dropping switch-out for %v: %v", in.PrevPID, err)
		}
	}
	if in.NextPID.Valid() {
		if err := p.Agg.AddSwitchIn(in.NextPID, waitNs); err != nil {
			log.V(2).Infof("probe: aggregate table full, dropping switch-in for %v: %v", in.NextPID, err)
		}
	}

	// The WAITLONG alert is emitted before the SWITCH event so a downstream
	// consumer can attribute it to the same switch instant.
	if cfg.WaitAlertNs != 0 && in.NextPID.Valid() && waitNs >= cfg.WaitAlertNs {
		p.emit(&event.Event{Timestamp: now, Kind: event.WaitLong, PID: in.NextPID, Name: in.NextName})
	}

	p.emit(&event.Event{
		Timestamp: now,
		Kind:      event.Switch,
		PID:       in.NextPID,
		Name:      in.NextName,
		Switch: &event.SwitchPayload{
			PrevPID:  in.PrevPID,
			NextPID:  in.NextPID,
			PrevName: in.PrevName,
			NextName: in.NextName,
			RunNs:    runNs,
			WaitNs:   waitNs,
			PrevCPU:  in.CPU,
			NextCPU:  in.CPU,
		},
	})
}

func deltaNs(now, stamp task.Timestamp) uint64 {
	d := now.Sub(stamp)
	if d < 0 {
		return 0
	}
	return uint64(d)
}

// OnExec handles a thread-group leader's first (and later) exec.
func (p *Probes) OnExec(tgid task.ID, name task.Name) {
	now := p.Now()
	cfg := p.readConfig()
	if cfg.FilterPID != 0 && uint32(tgid) != cfg.FilterPID {
		return
	}
	if err := p.Agg.SetFirstExec(tgid, now); err != nil {
		log.V(2).Infof("probe: aggregate table full, dropping first-exec stamp for %v: %v", tgid, err)
	}
	p.emit(&event.Event{Timestamp: now, Kind: event.Exec, PID: tgid, Name: name})
}

// OnExit handles a task's exit. Only thread-group-leader exits are
// tracked; id and tgid are expected to be supplied by the caller from the
// same kernel task_struct, so a mismatch means a non-leader thread.
func (p *Probes) OnExit(id, tgid task.ID, name task.Name) {
	if id != tgid {
		return
	}
	now := p.Now()
	cfg := p.readConfig()
	if cfg.FilterPID != 0 && uint32(id) != cfg.FilterPID {
		return
	}
	if err := p.Wake.Delete(id); err != nil {
		log.V(2).Infof("probe: failed to clear wake stamp on exit for %v: %v", id, err)
	}
	if err := p.OnCPU.Delete(id); err != nil {
		log.V(2).Infof("probe: failed to clear on-cpu stamp on exit for %v: %v", id, err)
	}
	// The aggregate is deliberately left in place: user space needs it for
	// the exit summary, and it is never cleared on task-id reuse.
	p.emit(&event.Event{Timestamp: now, Kind: event.Exit, PID: id, Name: name})
}

// OnFork handles process creation, the fifth probe added by the fork
// extension. It updates no state tables, emitting only a FORK event.
func (p *Probes) OnFork(parentID, childID task.ID, parentName, childName task.Name) {
	now := p.Now()
	cfg := p.readConfig()
	if cfg.FilterPID != 0 && uint32(parentID) != cfg.FilterPID {
		return
	}
	p.emit(&event.Event{
		Timestamp: now,
		Kind:      event.Fork,
		PID:       parentID,
		Name:      parentName,
		Fork: &event.ForkPayload{
			ParentPID:  parentID,
			ChildPID:   childID,
			ParentName: parentName,
			ChildName:  childName,
		},
	})
}
