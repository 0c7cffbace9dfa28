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
package consumer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/google/schedlab/event"
	"github.com/google/schedlab/modes"
	"github.com/google/schedlab/task"
)

// fakePoller replays a fixed queue of frames, then reports empty.
type fakePoller struct {
	frames [][]byte
	done   chan struct{}
}

func (f *fakePoller) Poll(timeout time.Duration) ([]byte, bool) {
	if len(f.frames) == 0 {
		if f.done != nil {
			select {
			case <-f.done:
			default:
				close(f.done)
			}
		}
		time.Sleep(time.Millisecond)
		return nil, false
	}
	next := f.frames[0]
	f.frames = f.frames[1:]
	return next, true
}

func wakeFrame(pid task.ID, name string, ts task.Timestamp) []byte {
	return (&event.Event{Timestamp: ts, Kind: event.Wake, PID: pid, Name: task.NewName(name)}).Marshal()
}

func switchFrame(prev, next task.ID, ts task.Timestamp, runNs, waitNs uint64) []byte {
	return (&event.Event{
		Timestamp: ts, Kind: event.Switch, PID: next, Name: task.NewName("next"),
		Switch: &event.SwitchPayload{PrevPID: prev, NextPID: next, RunNs: runNs, WaitNs: waitNs},
	}).Marshal()
}

func runUntilDrained(t *testing.T, c *Consumer, poller *fakePoller) {
	t.Helper()
	poller.done = make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-poller.done
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	require.NoError(t, c.Run(ctx))
}

func TestConsumerTextModeRendersLines(t *testing.T) {
	var buf bytes.Buffer
	poller := &fakePoller{frames: [][]byte{wakeFrame(1, "a", 10)}}
	c, err := New(Options{Mode: modes.Stream, Out: &buf}, poller)
	require.NoError(t, err)

	runUntilDrained(t, c, poller)

	require.Contains(t, buf.String(), "WAKE")
	require.Contains(t, buf.String(), "pid=1")
}

func TestConsumerCSVModeWritesHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	poller := &fakePoller{frames: [][]byte{
		wakeFrame(1, "a", 10),
		wakeFrame(1, "a", 20),
	}}
	c, err := New(Options{Mode: modes.Stream, CSV: true, CSVHeader: true, Out: &buf}, poller)
	require.NoError(t, err)

	runUntilDrained(t, c, poller)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Equal(t, "ts_ns,type,pid,comm,prev_pid,next_pid,run_ns,wait_ns", lines[0])
	require.Equal(t, 1, strings.Count(buf.String(), "ts_ns,type"))
	require.Len(t, lines, 3)
}

func TestConsumerUpdatesUserAggregateFromSwitch(t *testing.T) {
	var buf bytes.Buffer
	poller := &fakePoller{frames: [][]byte{
		switchFrame(0, 2, 1000, 0, 0),
	}}
	c, err := New(Options{Mode: modes.Fairness, Out: &buf}, poller)
	require.NoError(t, err)

	runUntilDrained(t, c, poller)

	snap, ok := c.users.Snapshot(2)
	require.True(t, ok)
	require.Equal(t, uint32(1), snap.Switches)
}

func TestConsumerBackfillsBlankName(t *testing.T) {
	var buf bytes.Buffer
	blank := (&event.Event{Timestamp: 20, Kind: event.Wake, PID: 3}).Marshal()
	poller := &fakePoller{frames: [][]byte{wakeFrame(3, "known", 10), blank}}
	c, err := New(Options{Mode: modes.Stream, Out: &buf}, poller)
	require.NoError(t, err)

	runUntilDrained(t, c, poller)

	require.Equal(t, 2, strings.Count(buf.String(), "comm=\"known\""))
}

func TestConsumerSkipsRowsForModesNotTriggered(t *testing.T) {
	var buf bytes.Buffer
	poller := &fakePoller{frames: [][]byte{wakeFrame(1, "a", 10)}}
	c, err := New(Options{Mode: modes.Fork, Out: &buf}, poller)
	require.NoError(t, err)

	runUntilDrained(t, c, poller)

	require.Empty(t, buf.String())
}
