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
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillsd/skillsd/internal/daemon/api"
	"github.com/skillsd/skillsd/internal/lifecycle"
)

func newStatusCommand() *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Display the status, health and plugin summary of the skills daemon.

Exits non-zero when the daemon is not running.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			var status api.StatusResponse
			if err := newAPIClient(cfg).get(cmd.Context(), "/v1/status", &status); err != nil {
				// Distinguish "not running" from "running but broken".
				pidFile := lifecycle.NewPIDFile(cfg.Daemon.PIDFilePath())
				if pid, ok := pidFile.Read(); ok && lifecycle.IsProcessRunning(pid) {
					return fmt.Errorf("daemon process exists (PID %d) but the API is not answering: %w", pid, err)
				}
				return fmt.Errorf("daemon is not running")
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			fmt.Printf("Status:  %s\n", status.Status)
			fmt.Printf("Version: %s\n", status.Version)
			fmt.Printf("PID:     %d\n", status.PID)
			fmt.Printf("Uptime:  %s\n", (time.Duration(status.UptimeSeconds * float64(time.Second))).Round(time.Second))
			if status.Idle != nil {
				fmt.Printf("Idle:    %.1fs of %.0fs (shutdown in %.1fs)\n",
					status.Idle.IdleSeconds, status.Idle.TimeoutSeconds, status.Idle.TimeUntilIdle)
			}
			if len(status.Plugins) > 0 {
				fmt.Println("Plugins:")
				for _, p := range status.Plugins {
					fmt.Printf("  %-16s %s\n", p.Name, p.Version)
				}
			}
			if status.Connectors != nil {
				fmt.Printf("Connectors (%d):\n", status.Connectors.Total)
				for name, cs := range status.Connectors.Connectors {
					healthy := "unhealthy"
					if cs.Healthy {
						healthy = "healthy"
					}
					fmt.Printf("  %-16s %-10s circuit=%s\n", name, healthy, cs.Circuit.State)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output raw JSON")

	return cmd
}

func newReloadCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Reload plugins from configuration",
		Long: `Ask the running daemon to re-read its configuration and rebuild the
plugin set. The listen address and logging settings keep their running
values; use 'skillsctl restart' to change those.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			var result api.ReloadResponse
			if err := newAPIClient(cfg).post(cmd.Context(), "/v1/reload-plugins", &result); err != nil {
				return err
			}

			for name, ok := range result.Plugins {
				state := "started"
				if !ok {
					state = "failed"
				}
				fmt.Printf("  %-16s %s\n", name, state)
			}
			fmt.Printf("Reloaded plugins: %d started, %d failed\n", result.Started, result.Failed)
			if result.Failed > 0 {
				return fmt.Errorf("%d plugin(s) failed to start", result.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Config file path")

	return cmd
}
