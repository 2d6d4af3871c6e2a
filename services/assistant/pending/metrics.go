// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pending

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// pendingOpsTotal counts pending-store operations.
//
// Labels:
//   - op: "put", "resolve"
//   - outcome: "success", "not_found", "expired", "conflict", "error"
var pendingOpsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "steward",
		Subsystem: "pending",
		Name:      "ops_total",
		Help:      "Total pending-action store operations.",
	},
	[]string{"op", "outcome"},
)

func recordPendingOp(op, outcome string) {
	pendingOpsTotal.WithLabelValues(op, outcome).Inc()
}
