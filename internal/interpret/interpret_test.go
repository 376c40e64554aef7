package interpret

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alexlifshitz/teslanav/internal/trip"
)

type fakeLLM struct {
	system string
	user   string
	reply  string
	err    error
}

func (f *fakeLLM) Complete(_ context.Context, system, user string) (string, error) {
	f.system = system
	f.user = user
	return f.reply, f.err
}

func TestInterpretMultiStop(t *testing.T) {
	llm := &fakeLLM{reply: `{
		"origin": "",
		"stops": [
			{"id": "a", "address": "Costco, Sunnyvale CA", "label": "Costco", "stopType": "specific"},
			{"id": "b", "address": "123 Maple St", "label": "Home", "stopType": "specific"}
		],
		"preferences": {}
	}`}
	in := New(llm, nil)

	it, err := in.Interpret(context.Background(), "Costco, then home", Context{})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(it.Stops) != 2 {
		t.Fatalf("got %d stops, want 2", len(it.Stops))
	}
	for i, s := range it.Stops {
		if s.StopType != trip.StopSpecific {
			t.Errorf("stop %d type = %q, want specific", i, s.StopType)
		}
		if s.DwellMinutes != trip.DefaultDwellMinutes {
			t.Errorf("stop %d dwell = %d, want default %d", i, s.DwellMinutes, trip.DefaultDwellMinutes)
		}
	}
	if llm.user != "Costco, then home" {
		t.Errorf("user prompt = %q", llm.user)
	}
}

func TestInterpretSearchStop(t *testing.T) {
	llm := &fakeLLM{reply: `{
		"stops": [
			{"id": "g1", "label": "Gas", "stopType": "search", "searchQuery": "gas station"}
		]
	}`}
	in := New(llm, nil)

	it, err := in.Interpret(context.Background(), "get gas", Context{})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(it.Stops) != 1 {
		t.Fatalf("got %d stops, want 1", len(it.Stops))
	}
	s := it.Stops[0]
	if s.StopType != trip.StopSearch {
		t.Errorf("stopType = %q, want search", s.StopType)
	}
	if s.SearchQuery != "gas station" {
		t.Errorf("searchQuery = %q", s.SearchQuery)
	}
}

func TestInterpretGeneratesMissingIDs(t *testing.T) {
	llm := &fakeLLM{reply: `{
		"stops": [
			{"address": "1 First St"},
			{"id": "dup", "address": "2 Second St"},
			{"id": "dup", "address": "3 Third St"},
			{"id": 42, "address": "4 Fourth St"}
		]
	}`}
	in := New(llm, nil)

	it, err := in.Interpret(context.Background(), "errands", Context{})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(it.Stops) != 4 {
		t.Fatalf("got %d stops, want 4", len(it.Stops))
	}
	seen := map[string]bool{}
	for i, s := range it.Stops {
		if s.ID == "" {
			t.Errorf("stop %d has empty id", i)
		}
		if seen[s.ID] {
			t.Errorf("stop %d reuses id %q", i, s.ID)
		}
		seen[s.ID] = true
	}
	if it.Stops[3].ID != "42" {
		t.Errorf("numeric id = %q, want \"42\"", it.Stops[3].ID)
	}
}

func TestInterpretScenicImpliesAvoidHighways(t *testing.T) {
	llm := &fakeLLM{reply: `{
		"stops": [{"id": "a", "address": "Half Moon Bay"}],
		"preferences": {"scenic": true}
	}`}
	in := New(llm, nil)

	it, err := in.Interpret(context.Background(), "scenic drive to the coast", Context{})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if !it.Preferences.Scenic || !it.Preferences.AvoidHighways {
		t.Errorf("preferences = %+v, want scenic and avoidHighways", it.Preferences)
	}
}

func TestInterpretStripsFences(t *testing.T) {
	llm := &fakeLLM{reply: "```json\n{\"stops\": [{\"id\": \"a\", \"address\": \"X\"}]}\n```"}
	in := New(llm, nil)

	it, err := in.Interpret(context.Background(), "go to X", Context{})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(it.Stops) != 1 {
		t.Fatalf("got %d stops, want 1", len(it.Stops))
	}
}

func TestInterpretMalformedReply(t *testing.T) {
	llm := &fakeLLM{reply: "Sorry, I can't help with that."}
	in := New(llm, nil)

	_, err := in.Interpret(context.Background(), "Costco", Context{})
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("err = %v, want ErrMalformedResponse", err)
	}
}

func TestInterpretNoDestination(t *testing.T) {
	llm := &fakeLLM{reply: `{"stops": [], "notes": "No destination recognized in the prompt."}`}
	in := New(llm, nil)

	it, err := in.Interpret(context.Background(), "what a lovely day", Context{})
	if err != nil {
		t.Fatalf("Interpret: %v", err)
	}
	if len(it.Stops) != 0 {
		t.Errorf("got %d stops, want 0", len(it.Stops))
	}
	if it.Notes == "" {
		t.Error("notes should explain why no stops were produced")
	}
}

func TestInterpretLLMFailurePropagates(t *testing.T) {
	want := errors.New("upstream down")
	in := New(&fakeLLM{err: want}, nil)

	_, err := in.Interpret(context.Background(), "Costco", Context{})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want wrapped %v", err, want)
	}
}

func TestBuildSystemPromptIncludesContext(t *testing.T) {
	tc := Context{
		SavedPlaces: []Place{{Name: "Home", Address: "123 Maple St"}},
		CalendarEvents: []Event{
			{Title: "Dentist", Start: time.Date(2026, 8, 29, 14, 0, 0, 0, time.UTC), Location: "500 Oak Ave"},
		},
		ContactAddresses: []ContactAddress{{Name: "Mom", Address: "9 Rose Ln"}},
	}
	system := buildSystemPrompt(tc)

	for _, want := range []string{"123 Maple St", "Dentist", "Sat 14:00", "9 Rose Ln"} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if empty := buildSystemPrompt(Context{}); strings.Contains(empty, "Saved places") {
		t.Error("empty context should not emit a saved-places block")
	}
}

func TestDecodeBadFieldsDegradeToDefaults(t *testing.T) {
	it, err := decodeItinerary(`{
		"stops": [{
			"id": "a",
			"address": "X",
			"stopType": "teleport",
			"dwellMinutes": "not a number",
			"openTime": "25:99",
			"hasConflict": "yes"
		}]
	}`)
	if err != nil {
		t.Fatalf("decodeItinerary: %v", err)
	}
	s := it.Stops[0]
	if s.StopType != trip.StopSpecific {
		t.Errorf("stopType = %q, want specific fallback", s.StopType)
	}
	if s.DwellMinutes != trip.DefaultDwellMinutes {
		t.Errorf("dwell = %d, want default", s.DwellMinutes)
	}
	if s.OpenTime != "" {
		t.Errorf("openTime = %q, want dropped", s.OpenTime)
	}
	if s.HasConflict {
		t.Error("hasConflict should default to false")
	}
}
