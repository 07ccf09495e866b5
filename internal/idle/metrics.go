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

package idle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// idleShutdowns counts idle observations that triggered the
	// shutdown callback.
	idleShutdowns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skillsd_idle_shutdowns_total",
			Help: "Total daemon shutdowns triggered by the idle monitor",
		},
	)
)

// recordIdleShutdown increments the idle shutdown counter
func recordIdleShutdown() {
	idleShutdowns.Inc()
}
