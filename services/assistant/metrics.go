// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package assistant

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// turnsTotal counts orchestrator turns by terminal state.
//
// Labels:
//   - state: "conversational", "clarification", "confirmation_requested",
//     "dispatched", "cancelled", "nothing_pending", "classification_failed"
var turnsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "steward",
		Subsystem: "assistant",
		Name:      "turns_total",
		Help:      "Total orchestrator turns by terminal state.",
	},
	[]string{"state"},
)

func recordTurn(state string) {
	turnsTotal.WithLabelValues(state).Inc()
}
