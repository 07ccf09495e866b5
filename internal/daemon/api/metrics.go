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

package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequests counts API requests by method, path and status.
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skillsd_http_requests_total",
			Help: "Total HTTP requests served by the daemon API",
		},
		[]string{"method", "path", "status"},
	)

	// httpDuration observes request latency by method and path.
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "skillsd_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// rateLimited counts requests rejected by the inbound rate limiter.
	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "skillsd_rate_limited_total",
			Help: "Total requests rejected by the inbound rate limit",
		},
	)
)

// recordRequest feeds the request counter and latency histogram.
func recordRequest(method, path string, status int, seconds float64) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(seconds)
}

// recordRateLimited increments the rejection counter.
func recordRateLimited() {
	rateLimited.Inc()
}
