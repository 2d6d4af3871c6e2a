// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// dispatchDuration measures adapter call latency.
	//
	// Labels:
	//   - tool: "gmail", "calendar", "docs", "slack", "sms"
	//   - outcome: "success", "timeout", "auth", "network", "remote", "unknown_tool"
	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "steward",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Duration of tool adapter calls in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"tool", "outcome"},
	)

	// dispatchesTotal counts adapter calls.
	//
	// Labels:
	//   - tool, operation, outcome
	dispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Total tool dispatches.",
		},
		[]string{"tool", "operation", "outcome"},
	)
)

func recordDispatch(tool, operation, outcome string, duration time.Duration) {
	dispatchDuration.WithLabelValues(tool, outcome).Observe(duration.Seconds())
	dispatchesTotal.WithLabelValues(tool, operation, outcome).Inc()
}
