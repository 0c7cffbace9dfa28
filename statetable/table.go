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

// Package statetable implements the two per-task timing maps the probe
// layer consults on every firing: the wake stamp and the on-CPU stamp.
//
// Both are backed by a BPF_MAP_TYPE_HASH map keyed by task id. This gives
// the needed concurrency guarantee for free: cilium/ebpf's
// Lookup/Put/LookupAndDelete each resolve to a single BPF syscall, so
// individual inserts, lookups, and lookup-deletes are atomic with respect
// to the many CPUs that may be updating different keys (or racing on the
// same key) concurrently. A fixed MaxEntries gives a fixed-capacity,
// degrade-gracefully behavior: once full, Set on a new key fails while
// existing keys keep working.
package statetable

import (
	"errors"

	"github.com/cilium/ebpf"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/schedlab/task"
)

// DefaultCapacity is the default number of distinct task ids a table can
// track concurrently.
const DefaultCapacity = 131072

// bpfHash is the slice of *ebpf.Map's API a Table depends on.
type bpfHash interface {
	Put(key, value interface{}) error
	Lookup(key, valueOut interface{}) error
	LookupAndDelete(key, valueOut interface{}) error
	Delete(key interface{}) error
	Close() error
}

// Table is a task-id-keyed map from id to a single Timestamp, used for
// both the wake-stamp and on-CPU-stamp tables.
type Table struct {
	name string
	m    bpfHash
}

// New creates a Table with room for capacity distinct task ids.
func New(name string, capacity uint32) (*Table, error) {
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       name,
		Type:       ebpf.Hash,
		KeySize:    4,
		ValueSize:  8,
		MaxEntries: capacity,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "statetable: create %s: %v", name, err)
	}
	return &Table{name: name, m: m}, nil
}

// Set writes (or overwrites) the stamp for id. Per the wake handler's
// effect #3, this is an unconditional overwrite: any previously
// unconsumed stamp is silently replaced. If the table is at capacity and
// id is not already present, Set fails and existing keys are unaffected.
func (t *Table) Set(id task.ID, ts task.Timestamp) error {
	if err := t.m.Put(uint32(id), uint64(ts)); err != nil {
		return status.Errorf(codes.ResourceExhausted, "statetable[%s]: set %v: %v", t.name, id, err)
	}
	return nil
}

// Get returns the stamp for id, if one is present.
func (t *Table) Get(id task.ID) (task.Timestamp, bool, error) {
	var v uint64
	err := t.m.Lookup(uint32(id), &v)
	if errors.Is(err, ebpf.ErrKeyNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, status.Errorf(codes.Internal, "statetable[%s]: get %v: %v", t.name, id, err)
	}
	return task.Timestamp(v), true, nil
}

// GetAndDelete atomically reads and removes the stamp for id. The switch
// handler uses this to consume a wake stamp exactly once.
func (t *Table) GetAndDelete(id task.ID) (task.Timestamp, bool, error) {
	var v uint64
	err := t.m.LookupAndDelete(uint32(id), &v)
	if errors.Is(err, ebpf.ErrKeyNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, status.Errorf(codes.Internal, "statetable[%s]: get-and-delete %v: %v", t.name, id, err)
	}
	return task.Timestamp(v), true, nil
}

// Delete removes any stamp for id, if present. It is not an error for id
// to be absent.
func (t *Table) Delete(id task.ID) error {
	err := t.m.Delete(uint32(id))
	if err == nil || errors.Is(err, ebpf.ErrKeyNotExist) {
		return nil
	}
	return status.Errorf(codes.Internal, "statetable[%s]: delete %v: %v", t.name, id, err)
}

// Close releases the backing map.
func (t *Table) Close() error {
	return t.m.Close()
}
