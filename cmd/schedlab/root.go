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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cilium/ebpf/rlimit"
	log "github.com/golang/glog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/schedlab/aggregate"
	"github.com/google/schedlab/consumer"
	"github.com/google/schedlab/modes"
	"github.com/google/schedlab/probe"
	"github.com/google/schedlab/replay"
	"github.com/google/schedlab/ring"
	"github.com/google/schedlab/schedconfig"
	"github.com/google/schedlab/statetable"
)

// Exit codes.
const (
	exitClean              = 0
	exitCLIError           = 1
	exitProbeLoadFailure   = 2
	exitConfigWriteFailure = 3
	exitAttachFailure      = 4
	exitRingSetupFailure   = 5
)

// stageError tags an error with the process exit code its failing setup
// stage maps to, so main can pick the right exit code without having to
// overload the narrower grpc codes space four different ways.
type stageError struct {
	code int
	err  error
}

func (s *stageError) Error() string { return s.err.Error() }
func (s *stageError) Unwrap() error { return s.err }

func stage(code int, err error) error {
	if err == nil {
		return nil
	}
	return &stageError{code: code, err: err}
}

var (
	modeFlag        string
	filterPIDFlag   uint32
	waitAlertMsFlag uint64
	csvFlag         bool
	csvHeaderFlag   bool
	replayFlag      string
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedlab",
		Short: "Streams per-task scheduling metrics derived from kernel scheduler tracepoints",
		Long: "schedlab attaches to kernel scheduler tracepoints, derives per-task wake/run/wait\n" +
			"timings from the raw events, and streams them through one of several analysis\n" +
			"modes. Attachment to the host kernel's tracepoints is a primitive this binary\n" +
			"assumes: in production it is invoked with elevated privileges and the kernel\n" +
			"delivers typed callbacks to the probe layer directly.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRoot,
	}
	flags := cmd.Flags()
	flags.StringVar(&modeFlag, "mode", "stream", "output mode: stream|latency|fairness|ctx|timeline|shortlong|starvation|fork")
	flags.Uint32Var(&filterPIDFlag, "filter-pid", 0, "restrict observation to this task id (0 disables filtering)")
	flags.Uint64Var(&waitAlertMsFlag, "wait-alert-ms", 5, "wake->run wait threshold, in milliseconds, that triggers a starvation alert")
	flags.BoolVar(&csvFlag, "csv", false, "render output as CSV instead of text")
	flags.BoolVar(&csvHeaderFlag, "csv-header", false, "print the mode's CSV header once before any data rows")
	flags.StringVar(&replayFlag, "replay", "", "replay a recorded fixture file instead of attaching to live probes")
	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	mode, err := modes.ParseMode(modeFlag)
	if err != nil {
		return stage(exitCLIError, fmt.Errorf("invalid --mode: %w", err))
	}

	opts := consumer.Options{
		Mode:      mode,
		CSV:       csvFlag,
		CSVHeader: csvHeaderFlag,
		Out:       cmd.OutOrStdout(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if replayFlag != "" {
		return runReplay(ctx, opts, replayFlag)
	}
	return runLive(ctx, opts)
}

// runReplay drives opts' consumer from a previously recorded fixture file
// instead of live probes, per the replay package's round-trip mechanism.
func runReplay(ctx context.Context, opts consumer.Options, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return stage(exitCLIError, fmt.Errorf("open replay fixture: %w", err))
	}
	defer f.Close()

	reader := replay.NewReader(f)
	c, err := consumer.New(opts, reader)
	if err != nil {
		return stage(exitCLIError, fmt.Errorf("construct consumer: %w", err))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-reader.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	if err := c.Run(runCtx); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	return nil
}

// runLive wires the full probe pipeline and blocks until an interrupt
// requests shutdown, tearing down in order: stop ring polling, detach
// probes, free maps.
func runLive(ctx context.Context, opts consumer.Options) error {
	if err := rlimit.RemoveMemlock(); err != nil {
		return stage(exitAttachFailure, status.Errorf(codes.Internal, "remove memlock rlimit: %v", err))
	}

	cfg, err := schedconfig.Open()
	if err != nil {
		return stage(exitProbeLoadFailure, err)
	}
	defer cfg.Close()

	wake, err := statetable.New("schedlab_wake", statetable.DefaultCapacity)
	if err != nil {
		return stage(exitProbeLoadFailure, err)
	}
	defer wake.Close()

	onCPU, err := statetable.New("schedlab_oncpu", statetable.DefaultCapacity)
	if err != nil {
		return stage(exitProbeLoadFailure, err)
	}
	defer onCPU.Close()

	agg, err := aggregate.NewKernel(statetable.DefaultCapacity)
	if err != nil {
		return stage(exitProbeLoadFailure, err)
	}
	defer agg.Close()

	record := schedconfig.Record{
		WaitAlertNs: waitAlertMsFlag * 1_000_000,
		FilterPID:   filterPIDFlag,
	}
	if err := cfg.Write(record); err != nil {
		return stage(exitConfigWriteFailure, err)
	}

	transport, err := ring.New(ring.DefaultCapacityBytes)
	if err != nil {
		return stage(exitRingSetupFailure, err)
	}

	// Kernel tracepoint attachment itself is out of scope here: in
	// production the host kernel delivers typed callbacks directly to
	// probes' exported On* methods. Constructing it here loads the probe
	// layer's dependent state so a future callback integration has
	// somewhere to call into.
	probes := probe.New(cfg, wake, onCPU, agg, transport)
	log.Infof("schedlab: probe layer ready at t=%d (wait_alert_ns=%d filter_pid=%d); awaiting kernel-delivered callbacks",
		probes.Now(), record.WaitAlertNs, record.FilterPID)

	c, err := consumer.New(opts, transport)
	if err != nil {
		return stage(exitProbeLoadFailure, err)
	}

	if err := c.Run(ctx); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	log.Infof("schedlab: clean shutdown")
	return nil
}
