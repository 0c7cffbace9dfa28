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
package aggregate

import (
	"container/list"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/schedlab/task"
)

// DefaultUserCapacity matches the state-table budget: one user-side
// aggregate slot per trackable task id.
const DefaultUserCapacity = 131072

// Entry is one task's running aggregate, as seen by the consumer.
type Entry struct {
	TotalRunNs, TotalWaitNs uint64
	Switches, Wakes         uint32
	FirstExecNs             task.Timestamp
	HasFirstExec            bool
	LastSeenNs              task.Timestamp
	Exited                  bool
}

// UserTable is the consumer-side, authoritative aggregate table: computed
// independently from the event stream, keyed by task id, unbounded in
// principle but capped in practice.
//
// The cap is enforced with a pinned LRU: only entries that have already
// produced their terminal EXIT event are eligible for eviction, so a
// lifetime summary is never lost to capacity pressure. A plain LRU (evict
// whichever key was least recently touched, full stop) can't express that
// guarantee, since an idle-but-still-alive task could be the least
// recently touched entry; this is a deliberate, smaller structure built for
// that one invariant instead of reaching for a generic cache.
type UserTable struct {
	mu        sync.Mutex
	capacity  int
	entries   map[task.ID]*Entry
	evictable *list.List
	elemOf    map[task.ID]*list.Element
}

// NewUserTable creates a table that holds at most capacity entries in
// total, exited ones included. When a new id arrives at a full table, the
// entry that exited earliest is reclaimed; if no entry has exited, the new
// id is rejected.
func NewUserTable(capacity int) *UserTable {
	return &UserTable{
		capacity:  capacity,
		entries:   make(map[task.ID]*Entry),
		evictable: list.New(),
		elemOf:    make(map[task.ID]*list.Element),
	}
}

func (u *UserTable) getOrCreateLocked(id task.ID) (*Entry, error) {
	if e, ok := u.entries[id]; ok {
		return e, nil
	}
	if len(u.entries) >= u.capacity {
		front := u.evictable.Front()
		if front == nil {
			return nil, status.Errorf(codes.ResourceExhausted,
				"aggregate: user table full at %d entries, none are evictable (no exited tasks)", u.capacity)
		}
		evictID := u.evictable.Remove(front).(task.ID)
		delete(u.elemOf, evictID)
		delete(u.entries, evictID)
	}
	e := &Entry{}
	u.entries[id] = e
	return e, nil
}

func (u *UserTable) touch(id task.ID, ts task.Timestamp, mutate func(e *Entry)) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, err := u.getOrCreateLocked(id)
	if err != nil {
		return err
	}
	mutate(e)
	if ts > e.LastSeenNs {
		e.LastSeenNs = ts
	}
	return nil
}

// OnWake increments the wake counter for id.
func (u *UserTable) OnWake(id task.ID, ts task.Timestamp) error {
	return u.touch(id, ts, func(e *Entry) { e.Wakes++ })
}

// OnSwitchOut records a completed run slice for the outgoing task.
func (u *UserTable) OnSwitchOut(id task.ID, ts task.Timestamp, runNs uint64) error {
	return u.touch(id, ts, func(e *Entry) {
		e.TotalRunNs += runNs
		e.Switches++
	})
}

// OnSwitchIn records a completed wait for the incoming task.
func (u *UserTable) OnSwitchIn(id task.ID, ts task.Timestamp, waitNs uint64) error {
	return u.touch(id, ts, func(e *Entry) {
		e.TotalWaitNs += waitNs
		e.Switches++
	})
}

// OnExec assigns the first-seen exec timestamp, if unset.
func (u *UserTable) OnExec(id task.ID, ts task.Timestamp) error {
	return u.touch(id, ts, func(e *Entry) {
		if !e.HasFirstExec {
			e.FirstExecNs = ts
			e.HasFirstExec = true
		}
	})
}

// OnExit marks id's entry as exited (making it evictable) and returns a
// snapshot for the exit-time summary. Aggregates are never deleted
// outright: an entry persists for the life of the run and only becomes a
// candidate for eviction once it has exited, so a terminal summary can
// still be produced for a short-lived task under capacity pressure.
func (u *UserTable) OnExit(id task.ID, ts task.Timestamp) (Entry, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, err := u.getOrCreateLocked(id)
	if err != nil {
		return Entry{}, err
	}
	if ts > e.LastSeenNs {
		e.LastSeenNs = ts
	}
	if !e.Exited {
		e.Exited = true
		u.elemOf[id] = u.evictable.PushBack(id)
	}
	return *e, nil
}

// Snapshot returns a copy of id's current entry, if present.
func (u *UserTable) Snapshot(id task.ID) (Entry, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len reports the number of tracked task ids.
func (u *UserTable) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.entries)
}
