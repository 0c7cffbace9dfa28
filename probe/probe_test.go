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

package probe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/google/schedlab/event"
	"github.com/google/schedlab/schedconfig"
	"github.com/google/schedlab/task"
)

type fakeConfig struct {
	rec schedconfig.Record
}

func (f *fakeConfig) Read() (schedconfig.Record, error) { return f.rec, nil }

type fakeStampTable struct {
	stamps map[task.ID]task.Timestamp
}

func newFakeStampTable() *fakeStampTable {
	return &fakeStampTable{stamps: map[task.ID]task.Timestamp{}}
}

func (f *fakeStampTable) Set(id task.ID, ts task.Timestamp) error {
	f.stamps[id] = ts
	return nil
}

func (f *fakeStampTable) Get(id task.ID) (task.Timestamp, bool, error) {
	ts, ok := f.stamps[id]
	return ts, ok, nil
}

func (f *fakeStampTable) GetAndDelete(id task.ID) (task.Timestamp, bool, error) {
	ts, ok := f.stamps[id]
	delete(f.stamps, id)
	return ts, ok, nil
}

func (f *fakeStampTable) Delete(id task.ID) error {
	delete(f.stamps, id)
	return nil
}

type aggCall struct {
	kind   string
	id     task.ID
	amount uint64
	ts     task.Timestamp
}

type fakeAgg struct {
	calls        []aggCall
	firstExecSet map[task.ID]bool
}

func newFakeAgg() *fakeAgg { return &fakeAgg{firstExecSet: map[task.ID]bool{}} }

func (f *fakeAgg) AddWake(id task.ID) error {
	f.calls = append(f.calls, aggCall{kind: "wake", id: id})
	return nil
}

func (f *fakeAgg) AddSwitchOut(id task.ID, runNs uint64) error {
	f.calls = append(f.calls, aggCall{kind: "switchout", id: id, amount: runNs})
	return nil
}

func (f *fakeAgg) AddSwitchIn(id task.ID, waitNs uint64) error {
	f.calls = append(f.calls, aggCall{kind: "switchin", id: id, amount: waitNs})
	return nil
}

func (f *fakeAgg) SetFirstExec(id task.ID, ts task.Timestamp) error {
	if f.firstExecSet[id] {
		return nil
	}
	f.firstExecSet[id] = true
	f.calls = append(f.calls, aggCall{kind: "firstexec", id: id, ts: ts})
	return nil
}

type fakeEmitter struct {
	events []*event.Event
	reject bool
}

func (f *fakeEmitter) Reserve(encoded []byte) bool {
	if f.reject {
		return false
	}
	ev, err := event.Unmarshal(encoded)
	if err != nil {
		panic(err)
	}
	f.events = append(f.events, ev)
	return true
}

func newTestProbes(cfg schedconfig.Record) (*Probes, *fakeStampTable, *fakeStampTable, *fakeAgg, *fakeEmitter) {
	wake := newFakeStampTable()
	onCPU := newFakeStampTable()
	agg := newFakeAgg()
	ring := &fakeEmitter{}
	clockTime := task.Timestamp(1000)
	p := &Probes{
		Config: &fakeConfig{rec: cfg},
		Wake:   wake,
		OnCPU:  onCPU,
		Agg:    agg,
		Ring:   ring,
		Now:    func() task.Timestamp { return clockTime },
	}
	return p, wake, onCPU, agg, ring
}

func TestOnWakeRecordsStampAndEmits(t *testing.T) {
	p, wake, _, agg, ring := newTestProbes(schedconfig.Record{})
	p.OnWake(7, task.NewName("wakee"))

	ts, ok, err := wake.Get(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, task.Timestamp(1000), ts)

	require.Len(t, agg.calls, 1)
	require.Equal(t, "wake", agg.calls[0].kind)

	require.Len(t, ring.events, 1)
	require.Equal(t, event.Wake, ring.events[0].Kind)
}

func TestOnWakeFilteredOutByPID(t *testing.T) {
	p, wake, _, agg, ring := newTestProbes(schedconfig.Record{FilterPID: 99})
	p.OnWake(7, task.NewName("wakee"))

	_, ok, _ := wake.Get(7)
	require.False(t, ok)
	require.Empty(t, agg.calls)
	require.Empty(t, ring.events)
}

func TestOnSwitchComputesRunAndWait(t *testing.T) {
	p, wake, onCPU, agg, ring := newTestProbes(schedconfig.Record{})

	// Task 2 woke at t=900; task 1 was put on-cpu at t=950.
	wake.stamps[2] = 900
	onCPU.stamps[1] = 950

	p.Now = func() task.Timestamp { return 1000 }
	p.OnSwitch(SwitchInput{
		PrevPID:  1,
		PrevName: task.NewName("prev"),
		NextPID:  2,
		NextName: task.NewName("next"),
		CPU:      3,
	})

	require.Len(t, ring.events, 1)
	ev := ring.events[0]
	require.Equal(t, event.Switch, ev.Kind)
	require.NotNil(t, ev.Switch)
	require.Equal(t, uint64(50), ev.Switch.RunNs)  // 1000 - 950
	require.Equal(t, uint64(100), ev.Switch.WaitNs) // 1000 - 900

	// The wake stamp for the incoming task must be consumed.
	_, ok, _ := wake.Get(2)
	require.False(t, ok)

	// The incoming task now has an on-cpu stamp.
	ts, ok, _ := onCPU.Get(2)
	require.True(t, ok)
	require.Equal(t, task.Timestamp(1000), ts)

	var kinds []string
	for _, c := range agg.calls {
		kinds = append(kinds, c.kind)
	}
	require.Contains(t, kinds, "switchout")
	require.Contains(t, kinds, "switchin")
}

func TestOnSwitchEmitsWaitLongWhenOverThreshold(t *testing.T) {
	p, wake, _, _, ring := newTestProbes(schedconfig.Record{WaitAlertNs: 50})
	wake.stamps[2] = 900
	p.Now = func() task.Timestamp { return 1000 }

	p.OnSwitch(SwitchInput{PrevPID: 0, NextPID: 2, NextName: task.NewName("next"), CPU: 0})

	require.Len(t, ring.events, 2)
	require.Equal(t, event.WaitLong, ring.events[0].Kind)
	require.Equal(t, event.Switch, ring.events[1].Kind)
}

func TestOnSwitchIdlePrevSkipsRunAccounting(t *testing.T) {
	p, _, _, agg, ring := newTestProbes(schedconfig.Record{})
	p.OnSwitch(SwitchInput{PrevPID: task.UnknownID, NextPID: 5, NextName: task.NewName("n"), CPU: 0})

	require.Len(t, ring.events, 1)
	require.Equal(t, uint64(0), ring.events[0].Switch.RunNs)
	for _, c := range agg.calls {
		require.NotEqual(t, "switchout", c.kind)
	}
}

func TestOnExecSetsFirstExecOnce(t *testing.T) {
	p, _, _, agg, ring := newTestProbes(schedconfig.Record{})
	p.OnExec(1, task.NewName("a"))
	p.OnExec(1, task.NewName("a"))

	firstExecCount := 0
	for _, c := range agg.calls {
		if c.kind == "firstexec" {
			firstExecCount++
		}
	}
	require.Equal(t, 1, firstExecCount)
	require.Len(t, ring.events, 2)
}

func TestOnExitClearsStateOnlyForLeader(t *testing.T) {
	p, wake, onCPU, _, ring := newTestProbes(schedconfig.Record{})
	wake.stamps[1] = 10
	onCPU.stamps[1] = 20

	// Non-leader thread exit: nothing happens.
	p.OnExit(1, 2, task.NewName("thread"))
	require.Empty(t, ring.events)
	_, ok, _ := wake.Get(1)
	require.True(t, ok)

	// Leader exit: state is cleared and an EXIT event emitted.
	p.OnExit(1, 1, task.NewName("leader"))
	require.Len(t, ring.events, 1)
	require.Equal(t, event.Exit, ring.events[0].Kind)
	_, ok, _ = wake.Get(1)
	require.False(t, ok)
	_, ok, _ = onCPU.Get(1)
	require.False(t, ok)
}

func TestOnForkEmitsDistinctPayload(t *testing.T) {
	p, _, _, _, ring := newTestProbes(schedconfig.Record{})
	p.OnFork(1, 2, task.NewName("parent"), task.NewName("child"))

	require.Len(t, ring.events, 1)
	ev := ring.events[0]
	require.Equal(t, event.Fork, ev.Kind)
	require.NotNil(t, ev.Fork)
	require.Equal(t, task.ID(1), ev.Fork.ParentPID)
	require.Equal(t, task.ID(2), ev.Fork.ChildPID)
}

func TestOnForkFilteredOutByPID(t *testing.T) {
	p, _, _, _, ring := newTestProbes(schedconfig.Record{FilterPID: 42})
	p.OnFork(1, 2, task.NewName("parent"), task.NewName("child"))
	require.Empty(t, ring.events)
}

func TestRingFullDropIsSilent(t *testing.T) {
	p, _, _, _, ring := newTestProbes(schedconfig.Record{})
	ring.reject = true
	require.NotPanics(t, func() {
		p.OnWake(1, task.NewName("a"))
	})
	require.Empty(t, ring.events)
}
