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

package schedconfig

import (
	"testing"

	"github.com/cilium/ebpf"
	"github.com/stretchr/testify/require"
)

// fakeMap is a minimal in-memory stand-in for the single BPF_MAP_TYPE_ARRAY
// slot Store uses, letting these tests run without CAP_BPF or a kernel BPF
// syscall.
type fakeMap struct {
	slot []byte
	has  bool
}

func (f *fakeMap) Put(key, value interface{}) error {
	v := value.([]byte)
	f.slot = append([]byte(nil), v...)
	f.has = true
	return nil
}

func (f *fakeMap) Lookup(key, valueOut interface{}) error {
	if !f.has {
		return ebpf.ErrKeyNotExist
	}
	copy(valueOut.([]byte), f.slot)
	return nil
}

func (f *fakeMap) Close() error { return nil }

func TestStoreReadBeforeWrite(t *testing.T) {
	s := &Store{m: &fakeMap{}}
	r, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, Record{}, r)
}

func TestStoreWriteThenRead(t *testing.T) {
	s := &Store{m: &fakeMap{}}
	want := Record{WaitAlertNs: 5_000_000, FilterPID: 1234}
	require.NoError(t, s.Write(want))
	got, err := s.Read()
	require.NoError(t, err)
	require.Equal(t, want, got)
}
