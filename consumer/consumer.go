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
// Package consumer implements the user-space side of the pipeline: it
// polls the ring transport, maintains the user-side aggregate table
// independently of the kernel-side one, and drives the active mode
// projection.
package consumer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	log "github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/google/schedlab/aggregate"
	"github.com/google/schedlab/event"
	"github.com/google/schedlab/modes"
	"github.com/google/schedlab/task"
)

// PollInterval is the ring poll timeout: long enough to avoid busy-waiting,
// short enough that shutdown is prompt.
const PollInterval = 200 * time.Millisecond

// nameCacheSize bounds the pid->name backfill cache. It is far smaller than
// the 131,072-entry state-table budget, so the names of the least recently
// seen pids are evicted once it fills.
const nameCacheSize = 4096

// Poller is the ring transport's consumer-facing surface.
type Poller interface {
	Poll(timeout time.Duration) ([]byte, bool)
}

// Options configures a Consumer. It is built by the CLI layer and handed in
// already parsed; Consumer itself is agnostic to how it was constructed.
type Options struct {
	Mode          modes.Mode
	CSV           bool
	CSVHeader     bool
	TableCapacity int
	Out           io.Writer
}

// Consumer drives the poll loop, aggregate maintenance, and mode rendering.
type Consumer struct {
	runID    uuid.UUID
	opts     Options
	ring     Poller
	users    *aggregate.UserTable
	names    *simplelru.LRU
	proj     modes.Projection
	csvW     *csv.Writer
	wroteHdr bool
}

// New constructs a Consumer. TableCapacity defaults to
// aggregate.DefaultUserCapacity if unset.
func New(opts Options, ring Poller) (*Consumer, error) {
	capacity := opts.TableCapacity
	if capacity <= 0 {
		capacity = aggregate.DefaultUserCapacity
	}
	names, err := simplelru.NewLRU(nameCacheSize, nil)
	if err != nil {
		return nil, fmt.Errorf("consumer: create name cache: %w", err)
	}
	c := &Consumer{
		runID: uuid.New(),
		opts:  opts,
		ring:  ring,
		users: aggregate.NewUserTable(capacity),
		names: names,
		proj:  modes.New(opts.Mode),
	}
	if opts.CSV {
		c.csvW = csv.NewWriter(opts.Out)
	}
	return c, nil
}

// Run polls the ring until ctx is cancelled, processing and rendering every
// decoded event. It returns nil on clean cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	log.Infof("consumer[%s]: starting poll loop, mode=%s", c.runID, c.opts.Mode)
	for {
		select {
		case <-ctx.Done():
			log.Infof("consumer[%s]: stop requested, ending poll loop", c.runID)
			return c.flush()
		default:
		}

		buf, ok := c.ring.Poll(PollInterval)
		if !ok {
			continue
		}
		ev, err := event.Unmarshal(buf)
		if err != nil {
			log.Errorf("consumer[%s]: dropping malformed frame: %v", c.runID, err)
			continue
		}
		if err := c.process(ev); err != nil {
			log.Errorf("consumer[%s]: processing %s event for %v: %v", c.runID, ev.Kind, ev.PID, err)
		}
	}
}

func (c *Consumer) flush() error {
	if c.csvW != nil {
		c.csvW.Flush()
		return c.csvW.Error()
	}
	return nil
}

// process updates the user-side aggregate and renders one output row, if
// the active mode is triggered by ev's kind.
func (c *Consumer) process(ev *event.Event) error {
	ev.Name = c.backfillName(ev.PID, ev.Name)

	if err := c.updateAggregate(ev); err != nil {
		return err
	}

	snap, _ := c.users.Snapshot(ev.PID)
	row, ok := c.proj.Process(ev, snap)
	if !ok {
		return nil
	}
	return c.render(row)
}

func (c *Consumer) updateAggregate(ev *event.Event) error {
	switch ev.Kind {
	case event.Wake:
		return c.users.OnWake(ev.PID, ev.Timestamp)
	case event.Switch:
		if ev.Switch == nil {
			return nil
		}
		if ev.Switch.PrevPID.Valid() {
			if err := c.users.OnSwitchOut(ev.Switch.PrevPID, ev.Timestamp, ev.Switch.RunNs); err != nil {
				return err
			}
		}
		if ev.Switch.NextPID.Valid() {
			return c.users.OnSwitchIn(ev.Switch.NextPID, ev.Timestamp, ev.Switch.WaitNs)
		}
		return nil
	case event.Exec:
		return c.users.OnExec(ev.PID, ev.Timestamp)
	case event.Exit:
		_, err := c.users.OnExit(ev.PID, ev.Timestamp)
		return err
	default:
		// WAITLONG and FORK carry no aggregate update of their own.
		return nil
	}
}

// backfillName returns name unless it is blank, in which case it returns
// the most recently seen non-blank name for id, if any. Every non-blank
// name observed is recorded for future backfills.
func (c *Consumer) backfillName(id task.ID, name task.Name) task.Name {
	if s := name.String(); s != "" {
		c.names.Add(id, s)
		return name
	}
	if v, ok := c.names.Get(id); ok {
		return task.NewName(v.(string))
	}
	return name
}

func (c *Consumer) render(row modes.Row) error {
	if c.csvW == nil {
		_, err := fmt.Fprintln(c.opts.Out, row.Text())
		return err
	}
	if c.opts.CSVHeader && !c.wroteHdr {
		if err := c.csvW.Write(c.proj.CSVHeader()); err != nil {
			return err
		}
		c.wroteHdr = true
	}
	if err := c.csvW.Write(row.CSV()); err != nil {
		return err
	}
	c.csvW.Flush()
	return c.csvW.Error()
}
