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
package task

import "testing"

func TestIDValid(t *testing.T) {
	if UnknownID.Valid() {
		t.Fatal("UnknownID must not be valid")
	}
	if !ID(42).Valid() {
		t.Fatal("nonzero id must be valid")
	}
}

func TestNameRoundTrip(t *testing.T) {
	n := NewName("stress-ng")
	if got, want := n.String(), "stress-ng"; got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func TestNameTruncates(t *testing.T) {
	n := NewName("a-name-that-is-longer-than-sixteen-bytes")
	if got, want := len(n.String()), NameSize; got != want {
		t.Fatalf("truncated name length = %d, want %d", got, want)
	}
}

func TestTimestampSub(t *testing.T) {
	if got, want := Timestamp(150).Sub(Timestamp(100)), int64(50); got != want {
		t.Fatalf("Sub() = %d, want %d", got, want)
	}
	// Cross-CPU timestamps are only approximately monotonic; Sub must not
	// panic or wrap oddly on an apparent negative delta.
	if got, want := Timestamp(100).Sub(Timestamp(150)), int64(-50); got != want {
		t.Fatalf("Sub() = %d, want %d", got, want)
	}
}
