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

package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/skillsd/skillsd/internal/config"
	"github.com/skillsd/skillsd/internal/log"
)

// RunOptions configures daemon execution.
type RunOptions struct {
	Version   string
	Commit    string
	BuildDate string

	// ConfigPath overrides config file discovery. Empty falls back to
	// the default location when a file exists there.
	ConfigPath string

	// Listen overrides daemon.listen from the config.
	Listen string

	// DataDir overrides daemon.data_dir from the config.
	DataDir string

	// DisableIdle keeps the daemon alive regardless of inactivity.
	DisableIdle bool
}

// Run starts the daemon and blocks until a shutdown trigger or a fatal
// error. SIGINT, SIGTERM, the idle timeout and POST /v1/shutdown all
// converge on the same trigger. It is the entry point for the skillsd
// binary.
func Run(opts RunOptions) error {
	// Bootstrap logging from the environment; the config file's log
	// section is applied once the file is loaded.
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	configPath := opts.ConfigPath
	if configPath == "" {
		configPath = discoverConfigPath()
	}

	cfg, warnings, err := config.LoadWithSecrets(ctx, configPath, newSecretsRegistry(logger))
	if err != nil {
		logger.Error("failed to load configuration", log.Error(err))
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	for _, w := range warnings {
		logger.Warn("configuration warning", log.String("warning", w))
	}

	// Command line overrides beat both the file and the environment.
	if opts.Listen != "" {
		cfg.Daemon.Listen = opts.Listen
	}
	if opts.DataDir != "" {
		cfg.Daemon.DataDir = opts.DataDir
	}
	if opts.DisableIdle {
		cfg.Idle.Enabled = false
	}

	// Rebuild logging now that the file's log section is known. The
	// loader already folded the environment into cfg.Log, so this keeps
	// env-over-file precedence.
	logCfg := log.DefaultConfig()
	logCfg.Level = cfg.Log.Level
	logCfg.Format = log.Format(cfg.Log.Format)
	logCfg.AddSource = cfg.Log.AddSource
	logger = log.New(logCfg)
	slog.SetDefault(logger)

	d, err := New(cfg, Options{
		Version:    opts.Version,
		Commit:     opts.Commit,
		BuildDate:  opts.BuildDate,
		ConfigPath: configPath,
	})
	if err != nil {
		logger.Error("failed to create daemon", log.Error(err))
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	d.signals.Notify(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- d.Start(ctx)
	}()

	select {
	case <-d.signals.ShutdownChan():
		cancel()
		if err := d.Shutdown(context.Background()); err != nil {
			logger.Error("error during shutdown", log.Error(err))
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil

	case err := <-errCh:
		if err != nil {
			logger.Error("daemon error", log.Error(err))
			// Unwind whatever came up before the failure.
			_ = d.Shutdown(context.Background())
			return fmt.Errorf("daemon error: %w", err)
		}
		return nil
	}
}

// discoverConfigPath returns the default config file location when a
// file exists there, otherwise empty for a defaults-and-env run.
func discoverConfigPath() string {
	path, err := config.ConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
