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

package plugin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// pluginStartups counts plugin startup attempts by outcome.
	pluginStartups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillsd_plugin_startups_total",
			Help: "Total plugin startup attempts by outcome",
		},
		[]string{"plugin", "outcome"},
	)
)

// recordStartup increments the startup counter.
func recordStartup(plugin string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	pluginStartups.WithLabelValues(plugin, outcome).Inc()
}
