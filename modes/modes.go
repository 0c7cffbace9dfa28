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
// Package modes implements the eight output projections: stream, latency,
// fairness, ctx, timeline, shortlong, starvation, and fork. Each projection
// watches a subset of event kinds and renders either a human-readable line
// or a CSV row from the event plus the current user-side aggregate
// snapshot for its primary task id.
package modes

import (
	"fmt"
	"strconv"

	"github.com/google/schedlab/aggregate"
	"github.com/google/schedlab/event"
)

// Mode names one of the eight output projections.
type Mode int

const (
	Stream Mode = iota
	Latency
	Fairness
	Ctx
	Timeline
	ShortLong
	Starvation
	Fork
)

var modeNames = map[Mode]string{
	Stream:     "stream",
	Latency:    "latency",
	Fairness:   "fairness",
	Ctx:        "ctx",
	Timeline:   "timeline",
	ShortLong:  "shortlong",
	Starvation: "starvation",
	Fork:       "fork",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

// ParseMode parses the --mode flag value. It returns an error for anything
// outside the eight recognized names, which the caller treats as malformed
// CLI (print usage, exit 1).
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("modes: unrecognized mode %q", s)
}

// Row is one rendered output record, in both its human-readable and CSV
// forms.
type Row interface {
	Text() string
	CSV() []string
}

// Projection dispatches events of interest into rows for one mode.
type Projection interface {
	Mode() Mode
	CSVHeader() []string
	// Process builds a row for ev, given the current user-side aggregate
	// snapshot for ev's primary task id (as updated by this same event). It
	// returns ok=false if ev's kind does not trigger this mode.
	Process(ev *event.Event, snap aggregate.Entry) (Row, bool)
}

// New constructs the Projection for m.
func New(m Mode) Projection {
	switch m {
	case Stream:
		return streamProjection{}
	case Latency:
		return latencyProjection{}
	case Fairness:
		return fairnessProjection{}
	case Ctx:
		return ctxProjection{}
	case Timeline:
		return timelineProjection{}
	case ShortLong:
		return shortLongProjection{}
	case Starvation:
		return starvationProjection{}
	case Fork:
		return forkProjection{}
	default:
		return streamProjection{}
	}
}

func fmtOptU64(v *uint64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(*v, 10)
}

func fmtOptU32(v *uint32) string {
	if v == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*v), 10)
}
