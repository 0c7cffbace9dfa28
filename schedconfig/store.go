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

// Package schedconfig implements the single-slot configuration record: a
// wait-latency alert threshold and an optional filter task id, written once
// by user space at startup and read on every probe firing.
//
// The backing store is a one-entry BPF_MAP_TYPE_ARRAY map. This mirrors the
// real kernel-map abstraction probes read through, and gives the
// "configuration fully written before any probe reads it" ordering for
// free: the map doesn't exist until Open returns, and every reader is
// handed the Store that Open returned.
package schedconfig

import (
	"encoding/binary"
	"errors"

	"github.com/cilium/ebpf"
	log "github.com/golang/glog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Record is the single configuration entry read by every probe.
type Record struct {
	// WaitAlertNs is the wake->run wait threshold, in nanoseconds, above
	// which a WAITLONG event is emitted. Zero disables alerting.
	WaitAlertNs uint64
	// FilterPID restricts probes to events involving this task id only.
	// Zero disables filtering.
	FilterPID uint32
}

func (r Record) marshal() []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint64(b[0:8], r.WaitAlertNs)
	binary.LittleEndian.PutUint32(b[8:12], r.FilterPID)
	return b
}

func unmarshalRecord(b []byte) Record {
	return Record{
		WaitAlertNs: binary.LittleEndian.Uint64(b[0:8]),
		FilterPID:   binary.LittleEndian.Uint32(b[8:12]),
	}
}

const slotKey uint32 = 0

// bpfMap is the slice of *ebpf.Map's API that Store depends on. It exists
// so tests can exercise Store's framing and error-translation logic without
// a live kernel BPF syscall.
type bpfMap interface {
	Put(key, value interface{}) error
	Lookup(key, valueOut interface{}) error
	Close() error
}

// Store is the lock-free, single-slot configuration record shared between
// user space and the probe layer.
type Store struct {
	m bpfMap
}

// Open creates the backing configuration map. It does not itself write a
// Record: until Write is called, probes reading the slot observe the
// zero-value Record (alerting and filtering disabled).
func Open() (*Store, error) {
	m, err := ebpf.NewMap(&ebpf.MapSpec{
		Name:       "schedlab_config",
		Type:       ebpf.Array,
		KeySize:    4,
		ValueSize:  12,
		MaxEntries: 1,
	})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "schedconfig: create map: %v", err)
	}
	return &Store{m: m}, nil
}

// Write publishes r as the active configuration. Per invariant 5, this must
// complete before probes are attached.
func (s *Store) Write(r Record) error {
	if err := s.m.Put(slotKey, r.marshal()); err != nil {
		return status.Errorf(codes.Internal, "schedconfig: write: %v", err)
	}
	log.Infof("schedconfig: wait_alert_ns=%d filter_pid=%d", r.WaitAlertNs, r.FilterPID)
	return nil
}

// Read returns the currently active configuration. Called on every probe
// firing; never blocks.
func (s *Store) Read() (Record, error) {
	var raw [12]byte
	if err := s.m.Lookup(slotKey, raw[:]); err != nil {
		if errors.Is(err, ebpf.ErrKeyNotExist) {
			return Record{}, nil
		}
		return Record{}, status.Errorf(codes.Internal, "schedconfig: read: %v", err)
	}
	return unmarshalRecord(raw[:]), nil
}

// Close releases the backing map.
func (s *Store) Close() error {
	return s.m.Close()
}
