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
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillsd/skillsd/internal/config"
	"github.com/skillsd/skillsd/internal/daemon"
	"github.com/skillsd/skillsd/internal/lifecycle"
)

func newStartCommand() *cobra.Command {
	var opts startOptions

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the skills daemon",
		Long: `Start the skills daemon in the background.

By default the daemon is spawned as a detached process that writes its
own PID file and logs to the configured log file. Use --foreground to
run it in the current terminal (for systemd or debugging).

The start command is idempotent: if the daemon is already running and
healthy, it exits successfully without starting a new instance.`,
		Example: `  # Start the daemon in the background
  skillsctl start

  # Run in the foreground (for systemd/docker)
  skillsctl start --foreground

  # Start with a custom listen address
  skillsctl start --listen 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStart(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file path")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP listen address (host:port)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", "", "Data directory for daemon state")
	cmd.Flags().BoolVar(&opts.foreground, "foreground", false, "Run in foreground (do not detach)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Health check timeout")

	return cmd
}

type startOptions struct {
	configPath string
	listen     string
	dataDir    string
	foreground bool
	timeout    time.Duration
}

func runStart(ctx context.Context, opts startOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.listen != "" {
		cfg.Daemon.Listen = opts.listen
	}
	if opts.dataDir != "" {
		cfg.Daemon.DataDir = opts.dataDir
	}

	if opts.foreground {
		fmt.Println("Starting daemon in foreground mode...")
		return daemon.Run(daemon.RunOptions{
			Version:    version,
			Commit:     commit,
			BuildDate:  buildDate,
			ConfigPath: opts.configPath,
			Listen:     opts.listen,
			DataDir:    opts.dataDir,
		})
	}

	events := lifecycle.NewEventLog(eventLogPath(cfg))
	if err := events.LogStart(version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}

	// Already-running check. IsRunning cleans up stale PID files as a
	// side effect, so a crashed previous daemon does not block restart.
	pidFile := lifecycle.NewPIDFile(cfg.Daemon.PIDFilePath())
	if pidFile.IsRunning() {
		pid, _ := pidFile.Read()
		checker := lifecycle.NewHealthChecker(healthEndpoint(cfg))
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if result := checker.Check(checkCtx); result.Success {
			if err := events.LogAlreadyRunning(pid); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
			}
			fmt.Printf("Daemon is already running (PID %d)\n", pid)
			return nil
		}
		return fmt.Errorf("daemon process exists (PID %d) but is not healthy; try 'skillsctl stop' first", pid)
	}

	binary, err := findDaemonBinary()
	if err != nil {
		return err
	}

	args := buildDaemonArgs(opts)
	logPath := cfg.Daemon.LogFilePath()

	started := time.Now()
	pid, err := lifecycle.NewSpawner().SpawnDetached(binary, args, logPath)
	if err != nil {
		if logErr := events.LogStartFailure(err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", logErr)
		}
		return fmt.Errorf("failed to spawn daemon: %w", err)
	}

	fmt.Printf("Starting daemon (PID %d)...\n", pid)

	// The daemon claims its own PID file once it is up; skillsctl only
	// waits for the health endpoint to answer.
	checker := lifecycle.NewHealthChecker(healthEndpoint(cfg))
	if err := checker.WaitUntilHealthy(ctx, opts.timeout); err != nil {
		_ = lifecycle.SendSignal(pid, syscall.SIGTERM)
		if logErr := events.LogStartFailure(err); logErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", logErr)
		}
		return fmt.Errorf("daemon failed to become healthy within %v (log: %s): %w", opts.timeout, logPath, err)
	}

	if err := events.LogStartSuccess(pid, time.Since(started)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to write lifecycle log: %v\n", err)
	}
	fmt.Printf("Daemon started successfully (PID %d)\n", pid)
	return nil
}

// findDaemonBinary locates skillsd next to the skillsctl executable,
// falling back to PATH lookup.
func findDaemonBinary() (string, error) {
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), "skillsd")
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	if path, err := exec.LookPath("skillsd"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("skillsd binary not found next to skillsctl or on PATH")
}

// buildDaemonArgs constructs the arguments for the spawned daemon so
// CLI overrides survive into the child.
func buildDaemonArgs(opts startOptions) []string {
	var args []string
	if opts.configPath != "" {
		args = append(args, "--config", opts.configPath)
	}
	if opts.listen != "" {
		args = append(args, "--listen", opts.listen)
	}
	if opts.dataDir != "" {
		args = append(args, "--data-dir", opts.dataDir)
	}
	return args
}

func healthEndpoint(cfg *config.Config) string {
	return fmt.Sprintf("http://%s/v1/health", cfg.Daemon.Listen)
}

func eventLogPath(cfg *config.Config) string {
	return filepath.Join(cfg.Daemon.DataDir, "lifecycle.log")
}
