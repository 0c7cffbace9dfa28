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
	"encoding/binary"
	"fmt"

	"github.com/google/schedlab/task"
)

// MaxFrameSize bounds the encoded size of any Event, header plus the larger
// of the two payload variants. The ring transport sizes its slots to this
// value so that every reservation is a fixed-size copy.
const MaxFrameSize = 96

const (
	headerSize  = 8 /*ts*/ + 1 /*kind*/ + 4 /*pid*/ + task.NameSize + 1 /*hasPayload*/
	payloadSize = 4 + 4 + task.NameSize + task.NameSize + 8 + 8 + 4 + 4
)

func init() {
	if headerSize+payloadSize > MaxFrameSize {
		panic("event: wire layout exceeds MaxFrameSize")
	}
}

// Marshal encodes ev into a fixed-layout wire frame suitable for the ring
// transport. It never allocates more than MaxFrameSize bytes.
func (ev *Event) Marshal() []byte {
	buf := make([]byte, headerSize, MaxFrameSize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(ev.Timestamp))
	buf[8] = byte(ev.Kind)
	binary.LittleEndian.PutUint32(buf[9:13], uint32(ev.PID))
	copy(buf[13:13+task.NameSize], ev.Name[:])
	hasPayload := byte(0)

	switch ev.Kind {
	case Switch:
		if ev.Switch != nil {
			hasPayload = 1
			buf = append(buf, marshalSwitch(ev.Switch)...)
		}
	case Fork:
		if ev.Fork != nil {
			hasPayload = 1
			buf = append(buf, marshalFork(ev.Fork)...)
		}
	}
	buf[headerSize-1] = hasPayload
	return buf
}

func marshalSwitch(p *SwitchPayload) []byte {
	b := make([]byte, payloadSize)
	o := 0
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(p.PrevPID))
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(p.NextPID))
	o += 4
	copy(b[o:o+task.NameSize], p.PrevName[:])
	o += task.NameSize
	copy(b[o:o+task.NameSize], p.NextName[:])
	o += task.NameSize
	binary.LittleEndian.PutUint64(b[o:o+8], p.RunNs)
	o += 8
	binary.LittleEndian.PutUint64(b[o:o+8], p.WaitNs)
	o += 8
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(p.PrevCPU))
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(p.NextCPU))
	return b
}

func marshalFork(f *ForkPayload) []byte {
	b := make([]byte, payloadSize)
	o := 0
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(f.ParentPID))
	o += 4
	binary.LittleEndian.PutUint32(b[o:o+4], uint32(f.ChildPID))
	o += 4
	copy(b[o:o+task.NameSize], f.ParentName[:])
	o += task.NameSize
	copy(b[o:o+task.NameSize], f.ChildName[:])
	// remaining run/wait/cpu fields are unused by fork and left zeroed.
	return b
}

// Unmarshal decodes a wire frame produced by Marshal. It returns an error if
// buf is too short for the declared kind's payload.
func Unmarshal(buf []byte) (*Event, error) {
	if len(buf) < headerSize {
		return nil, fmt.Errorf("event: frame too short: %d bytes", len(buf))
	}
	ev := &Event{
		Timestamp: task.Timestamp(binary.LittleEndian.Uint64(buf[0:8])),
		Kind:      Kind(buf[8]),
		PID:       task.ID(binary.LittleEndian.Uint32(buf[9:13])),
	}
	copy(ev.Name[:], buf[13:13+task.NameSize])
	hasPayload := buf[headerSize-1] != 0
	rest := buf[headerSize:]

	switch {
	case ev.Kind == Switch && hasPayload:
		if len(rest) < payloadSize {
			return nil, fmt.Errorf("event: switch payload too short: %d bytes", len(rest))
		}
		ev.Switch = unmarshalSwitch(rest)
	case ev.Kind == Fork && hasPayload:
		if len(rest) < payloadSize {
			return nil, fmt.Errorf("event: fork payload too short: %d bytes", len(rest))
		}
		ev.Fork = unmarshalFork(rest)
	}
	return ev, nil
}

func unmarshalSwitch(b []byte) *SwitchPayload {
	p := &SwitchPayload{}
	o := 0
	p.PrevPID = task.ID(binary.LittleEndian.Uint32(b[o : o+4]))
	o += 4
	p.NextPID = task.ID(binary.LittleEndian.Uint32(b[o : o+4]))
	o += 4
	copy(p.PrevName[:], b[o:o+task.NameSize])
	o += task.NameSize
	copy(p.NextName[:], b[o:o+task.NameSize])
	o += task.NameSize
	p.RunNs = binary.LittleEndian.Uint64(b[o : o+8])
	o += 8
	p.WaitNs = binary.LittleEndian.Uint64(b[o : o+8])
	o += 8
	p.PrevCPU = int32(binary.LittleEndian.Uint32(b[o : o+4]))
	o += 4
	p.NextCPU = int32(binary.LittleEndian.Uint32(b[o : o+4]))
	return p
}

func unmarshalFork(b []byte) *ForkPayload {
	f := &ForkPayload{}
	o := 0
	f.ParentPID = task.ID(binary.LittleEndian.Uint32(b[o : o+4]))
	o += 4
	f.ChildPID = task.ID(binary.LittleEndian.Uint32(b[o : o+4]))
	o += 4
	copy(f.ParentName[:], b[o:o+task.NameSize])
	o += task.NameSize
	copy(f.ChildName[:], b[o:o+task.NameSize])
	return f
}
