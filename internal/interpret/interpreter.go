// Package interpret turns free-form trip prompts into structured
// itineraries using a language model, with household context (saved
// places, contacts, upcoming calendar events) folded into the system
// prompt so the model can resolve aliases like "home" or "Mom's".
package interpret

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alexlifshitz/teslanav/internal/llm"
	"github.com/alexlifshitz/teslanav/internal/trip"
)

// Interpreter parses natural-language trip prompts into itineraries.
type Interpreter struct {
	llm    llm.Client
	logger *slog.Logger
}

func New(client llm.Client, logger *slog.Logger) *Interpreter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Interpreter{llm: client, logger: logger}
}

// Interpret sends the prompt to the model along with the given context
// and decodes the reply into a normalized itinerary. The returned
// itinerary may have zero stops; a prompt with no recognizable
// destination yields empty stops and a notes field explaining why,
// which is not an error.
func (in *Interpreter) Interpret(ctx context.Context, prompt string, tc Context) (trip.Itinerary, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return trip.Itinerary{}, fmt.Errorf("%w: empty prompt", ErrMalformedResponse)
	}

	system := buildSystemPrompt(tc)

	content, err := in.llm.Complete(ctx, system, prompt)
	if err != nil {
		return trip.Itinerary{}, fmt.Errorf("interpreting prompt: %w", err)
	}

	it, err := decodeItinerary(content)
	if err != nil {
		in.logger.Warn("undecodable itinerary reply",
			"error", err, "reply_len", len(content))
		return trip.Itinerary{}, err
	}

	in.logger.Debug("prompt interpreted",
		"stops", len(it.Stops),
		"origin", it.Origin,
		"scenic", it.Preferences.Scenic)
	return it, nil
}
