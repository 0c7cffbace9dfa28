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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/google/schedlab/task"
)

func TestUserTableAccumulates(t *testing.T) {
	u := NewUserTable(16)
	require.NoError(t, u.OnWake(1, 10))
	require.NoError(t, u.OnSwitchIn(1, 20, 100))
	require.NoError(t, u.OnSwitchOut(1, 30, 200))

	e, ok := u.Snapshot(1)
	require.True(t, ok)
	require.Equal(t, uint64(200), e.TotalRunNs)
	require.Equal(t, uint64(100), e.TotalWaitNs)
	require.Equal(t, uint32(2), e.Switches)
	require.Equal(t, uint32(1), e.Wakes)
	require.Equal(t, task.Timestamp(30), e.LastSeenNs)
}

func TestUserTableExitMakesEntryEvictableNotGone(t *testing.T) {
	u := NewUserTable(16)
	require.NoError(t, u.OnWake(1, 10))
	e, err := u.OnExit(1, 20)
	require.NoError(t, err)
	require.True(t, e.Exited)

	// The aggregate must still be readable after exit: the exit summary
	// depends on it.
	snap, ok := u.Snapshot(1)
	require.True(t, ok)
	require.True(t, snap.Exited)
}

func TestUserTableNeverEvictsBeforeTerminalEvent(t *testing.T) {
	u := NewUserTable(2)
	require.NoError(t, u.OnWake(1, 1))
	require.NoError(t, u.OnWake(2, 2))

	// Both entries are still open (no EXIT yet); a third distinct task must
	// be rejected rather than silently evicting an open entry.
	err := u.OnWake(3, 3)
	require.Error(t, err)

	_, ok := u.Snapshot(1)
	require.True(t, ok)
	_, ok = u.Snapshot(2)
	require.True(t, ok)
}

func TestUserTableEvictsOldestExitedWhenFull(t *testing.T) {
	u := NewUserTable(2)
	require.NoError(t, u.OnWake(1, 1))
	require.NoError(t, u.OnWake(2, 2))
	if _, err := u.OnExit(1, 3); err != nil {
		t.Fatal(err)
	}

	// Task 1 has exited and is now evictable; task 3 should be able to
	// take its slot.
	require.NoError(t, u.OnWake(3, 4))

	_, ok := u.Snapshot(1)
	require.False(t, ok, "exited entry should have been evicted to make room")
	_, ok = u.Snapshot(3)
	require.True(t, ok)
}

func TestUserTableLenTracksLiveEntries(t *testing.T) {
	u := NewUserTable(16)
	require.Equal(t, 0, u.Len())
	require.NoError(t, u.OnWake(1, 1))
	require.Equal(t, 1, u.Len())
}
