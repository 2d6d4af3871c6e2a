// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var connectionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "steward",
		Subsystem: "stream",
		Name:      "connections_total",
		Help:      "Total WebSocket chat connections accepted.",
	},
)

// framesTotal counts outbound frames by type.
//
// Labels:
//   - type: "connected", "status", "stream", "complete", "pong", "error"
var framesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "steward",
		Subsystem: "stream",
		Name:      "frames_total",
		Help:      "Total outbound WebSocket frames by type.",
	},
	[]string{"type"},
)

func recordConnection() {
	connectionsTotal.Inc()
}

func recordFrame(frameType string) {
	framesTotal.WithLabelValues(frameType).Inc()
}
