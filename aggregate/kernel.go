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

// Package aggregate implements the per-task aggregate: cumulative on-CPU
// time, cumulative off-CPU wait time, switch and wake counts, and the
// first-seen exec timestamp.
//
// Two independent tables exist. Kernel mirrors the probe-side view as a
// BPF_MAP_TYPE_HASH map, read with a plain Lookup-then-Put (no locking) so
// that its read-modify-write is exactly as non-atomic, and as tolerant of
// lost updates under contention, as a tracepoint callback racing other CPUs
// has to be. User (user.go) is the consumer-side table computed
// independently from the event stream, and is the one treated as
// authoritative for mode output.
package aggregate

import (
	"encoding/binary"
	"errors"

	"github.com/cilium/ebpf"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/schedlab/task"
)

// Snapshot is a point-in-time copy of one task's aggregate counters.
type Snapshot struct {
	TotalRunNs, TotalWaitNs uint64
	Switches, Wakes         uint32
	FirstExecNs             task.Timestamp
	HasFirstExec            bool
}

func (s Snapshot) marshal() []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint64(b[0:8], s.TotalRunNs)
	binary.LittleEndian.PutUint64(b[8:16], s.TotalWaitNs)
	binary.LittleEndian.PutUint32(b[16:20], s.Switches)
	binary.LittleEndian.PutUint32(b[20:24], s.Wakes)
	binary.LittleEndian.PutUint64(b[24:32], uint64(s.FirstExecNs))
	return b
}

func unmarshalSnapshot(b []byte) Snapshot {
	return Snapshot{
		TotalRunNs:   binary.LittleEndian.Uint64(b[0:8]),
		TotalWaitNs:  binary.LittleEndian.Uint64(b[8:16]),
		Switches:     binary.LittleEndian.Uint32(b[16:20]),
		Wakes:        binary.LittleEndian.Uint32(b[20:24]),
		FirstExecNs:  task.Timestamp(binary.LittleEndian.Uint64(b[24:32])),
		HasFirstExec: binary.LittleEndian.Uint64(b[24:32]) != 0,
	}
}

type bpfHash interface {
	Put(key, value interface{}) error
	Lookup(key, valueOut interface{}) error
	Close() error
}

// DefaultCapacity matches the state-table budget: one aggregate slot per
// trackable task id.
const DefaultCapacity = 131072

// Kernel is the probe-side aggregate table.
type Kernel struct {
	m bpfHash
}

// NewKernel creates the backing map.
func NewKernel(capacity uint32) (*Kernel, error) {
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "schedlab_aggregate",
		Type:       ebpf.Hash,
		KeySize:    4,
		ValueSize:  32,
		MaxEntries: capacity,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "aggregate: create kernel map: %v", err)
	}
	return &Kernel{m: m}, nil
}

func (k *Kernel) get(id task.ID) (Snapshot, error) {
	var raw [32]byte
	if err := k.m.Lookup(uint32(id), raw[:]); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return Snapshot{}, nil
		}
		return Snapshot{}, status.Errorf(codes.Internal, "aggregate: lookup %v: %v", id, err)
	}
	return unmarshalSnapshot(raw[:]), nil
}

func (k *Kernel) put(id task.ID, s Snapshot) error {
	if err := k.m.Put(uint32(id), s.marshal()); err != nil {
		return status.Errorf(codes.ResourceExhausted, "aggregate: put %v: %v", id, err)
	}
	return nil
}

// AddWake increments the wake counter for id, creating its entry if absent.
// The read and the write below are deliberately not combined under a lock:
// a concurrent update on another CPU for the same id may be lost. That
// loss is an accepted observer-effect cost, not a bug.
func (k *Kernel) AddWake(id task.ID) error {
	s, err := k.get(id)
	if err != nil {
		return err
	}
	s.Wakes++
	return k.put(id, s)
}

// AddSwitchOut records a completed run slice for the outgoing task.
func (k *Kernel) AddSwitchOut(id task.ID, runNs uint64) error {
	s, err := k.get(id)
	if err != nil {
		return err
	}
	s.TotalRunNs += runNs
	s.Switches++
	return k.put(id, s)
}

// AddSwitchIn records a completed wait for the incoming task.
func (k *Kernel) AddSwitchIn(id task.ID, waitNs uint64) error {
	s, err := k.get(id)
	if err != nil {
		return err
	}
	s.TotalWaitNs += waitNs
	s.Switches++
	return k.put(id, s)
}

// SetFirstExec assigns the first-seen exec timestamp, if one is not
// already set.
func (k *Kernel) SetFirstExec(id task.ID, ts task.Timestamp) error {
	s, err := k.get(id)
	if err != nil {
		return err
	}
	if s.HasFirstExec {
		return nil
	}
	s.FirstExecNs = ts
	s.HasFirstExec = true
	return k.put(id, s)
}

// Get returns the current snapshot for id. Aggregates are never deleted on
// exit, so this remains valid after a task has exited.
func (k *Kernel) Get(id task.ID) (Snapshot, error) {
	return k.get(id)
}

// Close releases the backing map.
func (k *Kernel) Close() error {
	return k.m.Close()
}
