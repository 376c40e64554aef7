// Package calendar reads upcoming events from a CalDAV server so the
// planner can resolve prompts like "take me to my next appointment".
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"github.com/alexlifshitz/teslanav/internal/interpret"
)

// Provider fetches upcoming events from a CalDAV server.
type Provider struct {
	client    *caldav.Client
	lookahead time.Duration
	maxEvents int
	logger    *slog.Logger
}

// NewProvider connects to the CalDAV endpoint with basic auth.
func NewProvider(endpoint, username, password string, lookahead time.Duration, maxEvents int, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := caldav.NewClient(
		webdav.HTTPClientWithBasicAuth(nil, username, password), endpoint)
	if err != nil {
		return nil, fmt.Errorf("creating caldav client: %w", err)
	}
	return &Provider{
		client:    client,
		lookahead: lookahead,
		maxEvents: maxEvents,
		logger:    logger,
	}, nil
}

// upcomingEvent is one event inside the lookahead window.
type upcomingEvent struct {
	title    string
	start    time.Time
	location string
}

// Upcoming returns up to maxEvents events starting within the
// lookahead window, earliest first, as interpretation context.
func (p *Provider) Upcoming(ctx context.Context) ([]interpret.Event, error) {
	now := time.Now()
	events, err := p.query(ctx, now, now.Add(p.lookahead))
	if err != nil {
		return nil, err
	}

	sort.Slice(events, func(i, j int) bool { return events[i].start.Before(events[j].start) })
	if len(events) > p.maxEvents {
		events = events[:p.maxEvents]
	}

	return toContext(events), nil
}

// toContext converts the fetched events into interpretation context.
// Start stays a time.Time; the prompt builder owns its rendering.
func toContext(events []upcomingEvent) []interpret.Event {
	out := make([]interpret.Event, 0, len(events))
	for _, e := range events {
		out = append(out, interpret.Event{
			Title:    e.title,
			Start:    e.start,
			Location: e.location,
		})
	}
	return out
}

func (p *Provider) query(ctx context.Context, start, end time.Time) ([]upcomingEvent, error) {
	principal, err := p.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("finding caldav principal: %w", err)
	}
	homeSet, err := p.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("finding calendar home set: %w", err)
	}
	calendars, err := p.client.FindCalendars(ctx, homeSet)
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}

	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name: ical.CompCalendar,
			Comps: []caldav.CalendarCompRequest{{
				Name:  ical.CompEvent,
				Props: []string{ical.PropSummary, ical.PropDateTimeStart, ical.PropLocation},
			}},
		},
		CompFilter: caldav.CompFilter{
			Name: ical.CompCalendar,
			Comps: []caldav.CompFilter{{
				Name:  ical.CompEvent,
				Start: start,
				End:   end,
			}},
		},
	}

	var out []upcomingEvent
	for _, cal := range calendars {
		objects, err := p.client.QueryCalendar(ctx, cal.Path, query)
		if err != nil {
			p.logger.Warn("calendar query failed", "calendar", cal.Path, "error", err)
			continue
		}
		for _, obj := range objects {
			out = append(out, extractEvents(obj.Data, start, end)...)
		}
	}
	return out, nil
}

// extractEvents pulls the events from one calendar object, keeping
// only those starting inside the window. Servers are allowed to return
// surrounding components, so the window is re-checked locally.
func extractEvents(cal *ical.Calendar, windowStart, windowEnd time.Time) []upcomingEvent {
	if cal == nil {
		return nil
	}
	var out []upcomingEvent
	for _, ev := range cal.Events() {
		startAt, err := ev.DateTimeStart(time.Local)
		if err != nil || startAt.Before(windowStart) || startAt.After(windowEnd) {
			continue
		}
		title, _ := ev.Props.Text(ical.PropSummary)
		if title == "" {
			title = "(untitled)"
		}
		location, _ := ev.Props.Text(ical.PropLocation)
		out = append(out, upcomingEvent{title: title, start: startAt, location: location})
	}
	return out
}
