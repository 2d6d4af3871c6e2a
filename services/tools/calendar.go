// Copyright (C) 2025 Steward AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/stewardai/steward/services/assistant/action"
)

// calendarListLimit bounds upcoming-event listings.
const calendarListLimit = 10

// CalendarAdapter executes scheduling operations against the user's
// primary Google Calendar.
//
// Operations:
//
//	create_event - summary, start_time, end_time (RFC 3339), optional
//	               description and location
//	list_events  - optional start_time lower bound, defaults to now
type CalendarAdapter struct {
	svc *calendar.Service
	now func() time.Time
}

// NewCalendarAdapter wraps an existing Calendar service.
func NewCalendarAdapter(svc *calendar.Service) (*CalendarAdapter, error) {
	if svc == nil {
		return nil, errors.New("tools: calendar service is required")
	}
	return &CalendarAdapter{svc: svc, now: time.Now}, nil
}

// NewCalendarAdapterFromAuth builds the Calendar service from OAuth
// credentials.
func NewCalendarAdapterFromAuth(ctx context.Context, auth GoogleAuth) (*CalendarAdapter, error) {
	config, token, err := NewGoogleClient(ctx, auth, calendar.CalendarEventsScope)
	if err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(config.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("tools: creating calendar service: %w", err)
	}
	return NewCalendarAdapter(svc)
}

// Tool identifies the adapter to the dispatcher.
func (a *CalendarAdapter) Tool() action.ToolType { return action.ToolCalendar }

// Execute runs one calendar operation.
func (a *CalendarAdapter) Execute(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	switch operation {
	case "create_event":
		return a.createEvent(ctx, params)
	case "list_events":
		return a.listEvents(ctx, params)
	default:
		return nil, errUnsupported(action.ToolCalendar, operation)
	}
}

func (a *CalendarAdapter) createEvent(ctx context.Context, params map[string]any) (map[string]any, error) {
	summary, err := stringParam(params, "summary")
	if err != nil {
		return nil, err
	}
	startTime, err := stringParam(params, "start_time")
	if err != nil {
		return nil, err
	}
	endTime, err := stringParam(params, "end_time")
	if err != nil {
		return nil, err
	}
	if _, err := time.Parse(time.RFC3339, startTime); err != nil {
		return nil, fmt.Errorf("tools: start_time is not RFC 3339: %w", err)
	}
	if _, err := time.Parse(time.RFC3339, endTime); err != nil {
		return nil, fmt.Errorf("tools: end_time is not RFC 3339: %w", err)
	}

	event := &calendar.Event{
		Summary:     summary,
		Description: optionalString(params, "description"),
		Location:    optionalString(params, "location"),
		Start:       &calendar.EventDateTime{DateTime: startTime},
		End:         &calendar.EventDateTime{DateTime: endTime},
	}

	created, err := a.svc.Events.Insert("primary", event).Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}
	return map[string]any{
		"event_id": created.Id,
		"link":     created.HtmlLink,
	}, nil
}

func (a *CalendarAdapter) listEvents(ctx context.Context, params map[string]any) (map[string]any, error) {
	timeMin := optionalString(params, "start_time")
	if timeMin == "" {
		timeMin = a.now().UTC().Format(time.RFC3339)
	}

	listing, err := a.svc.Events.List("primary").
		TimeMin(timeMin).
		SingleEvents(true).
		OrderBy("startTime").
		MaxResults(calendarListLimit).
		Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	events := make([]map[string]any, 0, len(listing.Items))
	for _, item := range listing.Items {
		entry := map[string]any{
			"event_id": item.Id,
			"summary":  item.Summary,
		}
		if item.Start != nil {
			entry["start_time"] = item.Start.DateTime
		}
		if item.End != nil {
			entry["end_time"] = item.End.DateTime
		}
		events = append(events, entry)
	}
	return map[string]any{
		"count":  len(events),
		"events": events,
	}, nil
}
