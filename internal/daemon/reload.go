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

	"github.com/skillsd/skillsd/internal/config"
	"github.com/skillsd/skillsd/internal/daemon/api"
	"github.com/skillsd/skillsd/internal/log"
)

// ReloadPlugins re-reads the configuration file and rebuilds the plugin
// set from its plugins and connectors sections. Daemon-level settings
// (listen address, timeouts, logging) keep their running values until a
// restart.
//
// Only one reload runs at a time; concurrent calls fail fast with
// api.ErrReloadInProgress. The incoming set is built before the running
// one is torn down, so a config that fails to parse, validate or build
// leaves the current plugins untouched.
func (d *Daemon) ReloadPlugins(ctx context.Context) (map[string]bool, error) {
	if !d.reloadMu.TryLock() {
		return nil, api.ErrReloadInProgress
	}
	defer d.reloadMu.Unlock()

	base := slog.Default()

	resolver := newSecretsRegistry(base)
	cfg, warnings, err := config.LoadWithSecrets(ctx, d.opts.ConfigPath, resolver)
	if err != nil {
		return nil, fmt.Errorf("reload configuration: %w", err)
	}
	for _, w := range warnings {
		d.logger.Warn("configuration warning", log.String("warning", w))
	}

	bundles, err := buildPluginSet(cfg, base)
	if err != nil {
		return nil, err
	}

	d.logger.Info("reloading plugins",
		log.Int("current", len(d.plugins.Names())),
		log.Int("incoming", len(bundles)))

	d.plugins.ShutdownAll(ctx)
	d.plugins.Clear()
	d.connectors.Clear()

	if err := d.registerPlugins(bundles); err != nil {
		// Duplicates are caught by buildPluginSet, so registration on a
		// cleared registry cannot collide; any error here leaves the
		// daemon without plugins until the next successful reload.
		return nil, err
	}

	results := d.plugins.StartupAll(ctx)
	if err := d.pluginState.Save(); err != nil {
		d.logger.Warn("failed to save plugin state", log.Error(err))
	}

	return results, nil
}
