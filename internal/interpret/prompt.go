package interpret

import (
	"fmt"
	"strings"
	"time"
)

// systemTemplate is the fixed parsing instruction. The model must
// answer with JSON only, matching the itinerary schema the decoder
// expects. The classification and splitting rules here mirror how the
// stops are consumed downstream: specific addresses go straight to the
// resolver, search queries get a places lookup along the route.
const systemTemplate = `You are a trip-planning parser for an electric-vehicle navigation assistant.
Turn the user's free-form itinerary into JSON. Reply with JSON only, no prose and no markdown fences.

Schema:
{
  "origin": "optional starting address; omit if the user didn't give one",
  "stops": [
    {
      "id": "short unique string",
      "address": "resolvable address or place name",
      "label": "optional short display name",
      "notes": "optional free text carried from the user's phrasing",
      "stopType": "specific" | "search",
      "searchQuery": "category query, only when stopType is search",
      "openTime": "HH:MM 24h, only when the user gave a time window",
      "closeTime": "HH:MM 24h, only when the user gave a time window",
      "dwellMinutes": 20
    }
  ],
  "preferences": {
    "scenic": false,
    "avoidHighways": false,
    "avoidTolls": false,
    "avoidFerries": false,
    "preferenceNotes": "optional free text"
  },
  "notes": "diagnostic text, e.g. when no destinations were found"
}

Rules:
- Split stops on commas and words like "then", "after that", "next".
- A named business or street address is stopType "specific".
- A category ("a Starbucks", "get gas", "somewhere for lunch") is stopType
  "search" with a searchQuery describing the place kind ("gas station").
- "home", "work", and contact names refer to the saved places and contact
  addresses below when present; use the full saved address as the stop address.
- Phrases like "before 3pm" or "they close at 5" become closeTime; "opens at 9"
  becomes openTime.
- Estimate dwellMinutes from context ("quick stop" = 5, "lunch" = 45);
  default 20.
- "scenic route" sets scenic AND avoidHighways. "no tolls" sets avoidTolls,
  "no highways"/"back roads" sets avoidHighways, "no ferries" sets avoidFerries.
- If the text contains no destination at all, return an empty stops array and
  explain in notes.`

// Bounds on dynamic context blocks, so a large address book can't
// crowd out the instruction.
const (
	maxContextPlaces   = 20
	maxContextEvents   = 5
	maxContextContacts = 12
)

// Place is a saved named place offered to the model as context.
type Place struct {
	Name    string
	Address string
}

// Event is an upcoming calendar event with a location.
type Event struct {
	Title    string
	Start    time.Time
	Location string
}

// ContactAddress pairs a contact's name with a postal address.
type ContactAddress struct {
	Name    string
	Address string
}

// Context is the dynamic knowledge appended to the system instruction.
// Empty slices produce no block at all.
type Context struct {
	SavedPlaces      []Place
	CalendarEvents   []Event
	ContactAddresses []ContactAddress
}

// buildSystemPrompt assembles the fixed rules plus any non-empty
// context blocks.
func buildSystemPrompt(c Context) string {
	var b strings.Builder
	b.WriteString(systemTemplate)

	if places := clip(c.SavedPlaces, maxContextPlaces); len(places) > 0 {
		b.WriteString("\n\nSaved places:\n")
		for _, p := range places {
			fmt.Fprintf(&b, "- %s: %s\n", p.Name, p.Address)
		}
	}

	if events := clip(c.CalendarEvents, maxContextEvents); len(events) > 0 {
		b.WriteString("\n\nUpcoming calendar events:\n")
		for _, e := range events {
			fmt.Fprintf(&b, "- %s at %s: %s\n", e.Title, e.Start.Format("Mon 15:04"), e.Location)
		}
	}

	if contacts := clip(c.ContactAddresses, maxContextContacts); len(contacts) > 0 {
		b.WriteString("\n\nContact addresses:\n")
		for _, a := range contacts {
			fmt.Fprintf(&b, "- %s: %s\n", a.Name, a.Address)
		}
	}

	return b.String()
}

func clip[T any](s []T, max int) []T {
	if len(s) > max {
		return s[:max]
	}
	return s
}
