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

// Package loadgen drives a probe.Probes harness with scripted
// wake/switch/exec/exit/fork sequences across simulated CPUs. It stands in
// for the kernel scheduler as an event source in tests and end-to-end
// scenarios; the shipped binary never imports this package, since workload
// generation is an external collaborator rather than a production concern.
//
// CPUs are simulated as independent goroutines fanned out and joined with
// errgroup: each goroutine runs its own lifecycle script to completion or
// until ctx is cancelled.
package loadgen

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/google/schedlab/probe"
	"github.com/google/schedlab/task"
)

// Lifecycle scripts one task's full run: an optional fork from a parent, an
// exec, a number of wake/run/wait cycles, then exit.
type Lifecycle struct {
	Task       task.ID
	Name       task.Name
	ParentTask task.ID // UnknownID if this task was not forked within the script
	ParentName task.Name
	RunSlices  int
}

// RunLifecycles drives probes through each lifecycle in order, on the given
// simulated CPU. It stops early if ctx is cancelled.
func RunLifecycles(ctx context.Context, cpu int32, probes *probe.Probes, lifecycles []Lifecycle) error {
	for _, lc := range lifecycles {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if lc.ParentTask.Valid() {
			probes.OnFork(lc.ParentTask, lc.Task, lc.ParentName, lc.Name)
		}
		probes.OnExec(lc.Task, lc.Name)

		for i := 0; i < lc.RunSlices; i++ {
			probes.OnWake(lc.Task, lc.Name)
			probes.OnSwitch(probe.SwitchInput{PrevPID: task.UnknownID, NextPID: lc.Task, NextName: lc.Name, CPU: cpu})
			probes.OnSwitch(probe.SwitchInput{PrevPID: lc.Task, PrevName: lc.Name, NextPID: task.UnknownID, CPU: cpu})
		}
		probes.OnExit(lc.Task, lc.Task, lc.Name)
	}
	return nil
}

// RunAcrossCPUs fans out one goroutine per element of perCPU, each running
// RunLifecycles on its own simulated CPU id, and waits for all to finish or
// for any to fail.
func RunAcrossCPUs(ctx context.Context, probes *probe.Probes, perCPU [][]Lifecycle) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, lifecycles := range perCPU {
		cpu := int32(i)
		lcs := lifecycles
		g.Go(func() error {
			return RunLifecycles(gctx, cpu, probes, lcs)
		})
	}
	return g.Wait()
}
