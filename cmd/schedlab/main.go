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

// Command schedlab streams per-task scheduling metrics derived from kernel
// scheduler tracepoints. It assembles an already-parsed consumer.Options
// from CLI flags; cobra owns the actual flag parsing and usage text.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run())
}

func run() int {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		code := exitCodeFor(err)
		fmt.Fprintln(os.Stderr, "schedlab:", err)
		if code == exitCLIError {
			fmt.Fprintln(os.Stderr)
			fmt.Fprintln(os.Stderr, cmd.UsageString())
		}
		return code
	}
	return exitClean
}

func exitCodeFor(err error) int {
	var se *stageError
	if errors.As(err, &se) {
		return se.code
	}
	return exitCLIError
}
