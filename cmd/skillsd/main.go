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

// Command skillsd runs the skills daemon: it hosts the configured
// plugins behind a local HTTP API and shuts itself down when idle.
// It is normally spawned by skillsctl start, but runs fine in the
// foreground for systemd or debugging.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/skillsd/skillsd/internal/daemon"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Config file path")
		listen      = flag.String("listen", "", "HTTP listen address (host:port)")
		dataDir     = flag.String("data-dir", "", "Data directory for daemon state")
		noIdle      = flag.Bool("no-idle", false, "Disable the idle-timeout shutdown")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("skillsd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	err := daemon.Run(daemon.RunOptions{
		Version:     version,
		Commit:      commit,
		BuildDate:   buildDate,
		ConfigPath:  *configPath,
		Listen:      *listen,
		DataDir:     *dataDir,
		DisableIdle: *noIdle,
	})
	if err != nil {
		// Run already logged the details.
		os.Exit(1)
	}
}
