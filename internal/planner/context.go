package planner

import (
	"context"
	"log/slog"

	"github.com/alexlifshitz/teslanav/internal/interpret"
)

// PlaceSource supplies saved places for the interpretation prompt.
type PlaceSource interface {
	ForContext() ([]interpret.Place, error)
}

// ContactSource supplies contact postal addresses.
type ContactSource interface {
	Addresses(ctx context.Context) ([]interpret.ContactAddress, error)
}

// EventSource supplies upcoming calendar events.
type EventSource interface {
	Upcoming(ctx context.Context) ([]interpret.Event, error)
}

// CompositeContext combines the configured context sources. Any source
// may be nil (not configured) and any source may fail; both degrade to
// an empty block in the prompt.
type CompositeContext struct {
	Places   PlaceSource
	Contacts ContactSource
	Calendar EventSource
	Logger   *slog.Logger
}

func (c *CompositeContext) PromptContext(ctx context.Context) (interpret.Context, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var tc interpret.Context
	if c.Places != nil {
		places, err := c.Places.ForContext()
		if err != nil {
			logger.Warn("saved places unavailable", "error", err)
		} else {
			tc.SavedPlaces = places
		}
	}
	if c.Contacts != nil {
		addrs, err := c.Contacts.Addresses(ctx)
		if err != nil {
			logger.Warn("contact addresses unavailable", "error", err)
		} else {
			tc.ContactAddresses = addrs
		}
	}
	if c.Calendar != nil {
		upcoming, err := c.Calendar.Upcoming(ctx)
		if err != nil {
			logger.Warn("calendar events unavailable", "error", err)
		} else {
			tc.CalendarEvents = upcoming
		}
	}
	return tc, nil
}
