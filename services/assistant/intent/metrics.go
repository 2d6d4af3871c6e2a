// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Package-level Prometheus metrics for intent classification.
// Auto-registered via promauto so no explicit registry wiring is needed.
var (
	// classificationDuration measures the duration of classification calls.
	//
	// Labels:
	//   - outcome: "success", "retry_success", "parse_error", "error"
	classificationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "steward",
			Subsystem: "intent",
			Name:      "classification_duration_seconds",
			Help:      "Duration of intent classification calls in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"outcome"},
	)

	// classificationsTotal counts classification calls.
	//
	// Labels:
	//   - outcome: "success", "retry_success", "parse_error", "error"
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "steward",
			Subsystem: "intent",
			Name:      "classifications_total",
			Help:      "Total number of intent classification calls.",
		},
		[]string{"outcome"},
	)
)

func recordClassification(outcome string, duration time.Duration) {
	classificationDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	classificationsTotal.WithLabelValues(outcome).Inc()
}
