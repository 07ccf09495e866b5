// Copyright 2026 The skillsd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillsd/skillsd/internal/lifecycle"
)

func newStopCommand() *cobra.Command {
	var opts stopOptions

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the skills daemon",
		Long: `Stop the skills daemon gracefully.

By default, sends SIGTERM and waits for graceful shutdown. If the
timeout is exceeded, sends SIGKILL to prevent orphaned processes.

The stop command is idempotent: if the daemon is not running, it exits
successfully after cleaning up stale PID files.`,
		Example: `  # Stop the daemon gracefully
  skillsctl stop

  # Skip graceful shutdown, kill immediately
  skillsctl stop --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStop(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file path")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Graceful shutdown timeout before SIGKILL")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Skip graceful shutdown, send SIGKILL immediately")

	return cmd
}

type stopOptions struct {
	configPath string
	timeout    time.Duration
	force      bool
}

func runStop(ctx context.Context, opts stopOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	events := lifecycle.NewEventLog(eventLogPath(cfg))
	pidFile := lifecycle.NewPIDFile(cfg.Daemon.PIDFilePath())

	pid, ok := pidFile.Read()
	if !ok {
		fmt.Println("Daemon is not running (no PID file)")
		return nil
	}

	if !lifecycle.IsProcessRunning(pid) {
		fmt.Printf("Daemon process %d is not running (removing stale PID file)\n", pid)
		pidFile.Remove()
		return nil
	}

	// Refuse to signal an unrelated process that recycled the pid.
	if !lifecycle.IsSkillsdProcess(pid) {
		return fmt.Errorf("PID %d is not a skillsd process (refusing to stop)", pid)
	}

	if err := events.LogStop(pid, opts.force); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}

	started := time.Now()
	fmt.Printf("Stopping daemon (PID %d)...\n", pid)

	if err := lifecycle.GracefulShutdown(pid, opts.timeout, opts.force); err != nil {
		if logErr := events.LogStopFailure(pid, err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", logErr)
		}
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	// The daemon removes its own PID file on graceful exit; clean up in
	// case it was killed before it got there.
	pidFile.Remove()

	if err := events.LogStopSuccess(pid, time.Since(started)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}
	fmt.Printf("Daemon stopped (PID %d)\n", pid)
	return nil
}

func newRestartCommand() *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the skills daemon",
		Long: `Restart the skills daemon by stopping and starting it.

Equivalent to 'skillsctl stop' followed by 'skillsctl start'. Use this
after configuration changes that a plugin reload cannot pick up, such
as the listen address.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := runStop(cmd.Context(), stopOptions{
				configPath: configPath,
				timeout:    timeout,
				force:      force,
			}); err != nil {
				return err
			}

			// Give the old listener a moment to release the port.
			time.Sleep(100 * time.Millisecond)

			return runStart(cmd.Context(), startOptions{
				configPath: configPath,
				timeout:    30 * time.Second,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Graceful shutdown timeout before SIGKILL")
	cmd.Flags().BoolVar(&force, "force", false, "Skip graceful shutdown, send SIGKILL immediately")

	return cmd
}
