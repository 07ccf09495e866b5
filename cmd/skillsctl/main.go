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

// Command skillsctl controls a local skillsd daemon: it spawns and
// stops the detached process, and talks to its HTTP API for status,
// reloads and history.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:   "skillsctl",
		Short: "Control the skills daemon",
		Long: `skillsctl manages a local skillsd daemon.

start and stop manage the daemon process directly through its PID file;
status, reload, history and logs talk to the running daemon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}

	root.AddCommand(newStartCommand())
	root.AddCommand(newStopCommand())
	root.AddCommand(newRestartCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newReloadCommand())
	root.AddCommand(newLogsCommand())
	root.AddCommand(newHistoryCommand())
	root.AddCommand(newVersionCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show skillsctl version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("skillsctl %s (commit: %s, built: %s)\n", version, commit, buildDate)
		},
	}
}
