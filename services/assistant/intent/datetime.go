// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Relative Date Normalization
// =============================================================================

// Conventions for relative expressions, resolved against a supplied "now":
//   - "today" is the request date, "tomorrow" the day after.
//   - "next week" is the Monday following the current week, at 00:00.
//   - A bare weekday name is the next future occurrence of that weekday
//     (never the request date itself).
//   - A time of day ("3pm", "15:30") applies to the resolved date; a date
//     with no time resolves to 09:00.

// dateParamNames are parameter keys whose values may carry datetimes.
var dateParamNames = map[string]bool{
	"start_time": true,
	"end_time":   true,
	"date":       true,
	"when":       true,
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// timeOfDayPattern matches "3pm", "3:30pm", "15:04".
var timeOfDayPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)

const defaultHour = 9

// NormalizeDateParameters rewrites relative datetime values in extracted
// parameters to absolute RFC 3339 strings.
//
// Description:
//
//	Only parameters with known datetime keys are touched. Values that
//	already parse as RFC 3339 pass through unchanged; values that resolve
//	as relative expressions are replaced; anything else is left as-is for
//	the mapper to reject or the user to correct.
//
// Inputs:
//   - params: Extracted parameters. May be nil.
//   - now: The request timestamp relative expressions resolve against.
//
// Outputs:
//   - map[string]any: The same map, with datetime values normalized.
//
// Thread Safety: The input map is mutated; callers must not share it.
func NormalizeDateParameters(params map[string]any, now time.Time) map[string]any {
	if params == nil {
		return map[string]any{}
	}

	for key, val := range params {
		if !dateParamNames[key] {
			continue
		}
		s, ok := val.(string)
		if !ok || s == "" {
			continue
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			continue
		}
		if resolved, ok := ResolveRelative(s, now); ok {
			params[key] = resolved.Format(time.RFC3339)
		}
	}

	return params
}

// ResolveRelative resolves a relative datetime expression against now.
//
// Inputs:
//   - expr: The expression, e.g. "tomorrow 3pm", "next week", "Friday".
//   - now: The reference timestamp.
//
// Outputs:
//   - time.Time: The resolved absolute time, in now's location.
//   - bool: False if the expression is not a recognized relative form.
func ResolveRelative(expr string, now time.Time) (time.Time, bool) {
	normalized := strings.ToLower(strings.TrimSpace(expr))
	if normalized == "" {
		return time.Time{}, false
	}

	day, rest, ok := resolveDay(normalized, now)
	if !ok {
		return time.Time{}, false
	}

	hour, minute := defaultHour, 0
	if rest != "" {
		if h, m, ok := parseTimeOfDay(rest); ok {
			hour, minute = h, m
		}
	}

	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, now.Location()), true
}

// resolveDay resolves the date part of an expression and returns any
// trailing time-of-day text.
func resolveDay(expr string, now time.Time) (time.Time, string, bool) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	for prefix, offset := range map[string]int{"today": 0, "tonight": 0, "tomorrow": 1} {
		if rest, found := strings.CutPrefix(expr, prefix); found {
			return today.AddDate(0, 0, offset), strings.TrimSpace(rest), true
		}
	}

	if rest, found := strings.CutPrefix(expr, "next week"); found {
		// Monday after the current week.
		daysUntilMonday := (int(time.Monday) - int(now.Weekday()) + 7) % 7
		if daysUntilMonday == 0 {
			daysUntilMonday = 7
		}
		return today.AddDate(0, 0, daysUntilMonday), strings.TrimSpace(rest), true
	}

	dayExpr := expr
	dayExpr = strings.TrimPrefix(dayExpr, "next ")
	dayExpr = strings.TrimPrefix(dayExpr, "on ")
	for name, weekday := range weekdayNames {
		if rest, found := strings.CutPrefix(dayExpr, name); found {
			// Next future occurrence, never today.
			days := (int(weekday) - int(now.Weekday()) + 7) % 7
			if days == 0 {
				days = 7
			}
			return today.AddDate(0, 0, days), strings.TrimSpace(rest), true
		}
	}

	return time.Time{}, "", false
}

// parseTimeOfDay parses "3pm", "3:30pm", or "15:04" into hour and minute.
func parseTimeOfDay(s string) (int, int, bool) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "at ")

	m := timeOfDayPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, false
	}

	hour, err := strconv.Atoi(m[1])
	if err != nil || hour > 23 {
		return 0, 0, false
	}

	minute := 0
	if m[2] != "" {
		minute, err = strconv.Atoi(m[2])
		if err != nil || minute > 59 {
			return 0, 0, false
		}
	}

	switch strings.ToLower(m[3]) {
	case "pm":
		if hour > 12 {
			return 0, 0, false
		}
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour > 12 {
			return 0, 0, false
		}
		if hour == 12 {
			hour = 0
		}
	}

	return hour, minute, true
}
