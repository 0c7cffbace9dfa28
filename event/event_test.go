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
package event

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/schedlab/task"
)

func TestMarshalUnmarshalSwitch(t *testing.T) {
	ev := &Event{
		Timestamp: 1000,
		Kind:      Switch,
		PID:       42,
		Name:      task.NewName("next"),
		Switch: &SwitchPayload{
			PrevPID:  7,
			NextPID:  42,
			PrevName: task.NewName("prev"),
			NextName: task.NewName("next"),
			RunNs:    500,
			WaitNs:   250,
			PrevCPU:  1,
			NextCPU:  2,
		},
	}
	got, err := Unmarshal(ev.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(ev, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalUnmarshalFork(t *testing.T) {
	ev := &Event{
		Timestamp: 99,
		Kind:      Fork,
		PID:       10,
		Name:      task.NewName("parent"),
		Fork: &ForkPayload{
			ParentPID:  10,
			ChildPID:   11,
			ParentName: task.NewName("parent"),
			ChildName:  task.NewName("child"),
		},
	}
	got, err := Unmarshal(ev.Marshal())
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(ev, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalUnmarshalNoPayload(t *testing.T) {
	ev := &Event{Timestamp: 5, Kind: Wake, PID: 3, Name: task.NewName("a")}
	buf := ev.Marshal()
	if len(buf) != headerSize {
		t.Fatalf("Marshal() length = %d, want %d for a no-payload kind", len(buf), headerSize)
	}
	got, err := Unmarshal(buf)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Switch != nil || got.Fork != nil {
		t.Fatalf("non-switch/fork event should decode with nil payloads, got %+v", got)
	}
	if diff := cmp.Diff(ev, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalTooShort(t *testing.T) {
	if _, err := Unmarshal([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error decoding a truncated frame")
	}
}

func TestKindString(t *testing.T) {
	for k, want := range map[Kind]string{
		Wake: "WAKE", Switch: "SWITCH", Exec: "EXEC", Exit: "EXIT", Fork: "FORK", WaitLong: "WAITLONG",
	} {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
