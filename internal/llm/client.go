// Package llm provides the language-model client used to interpret
// free-form itineraries.
package llm

import (
	"context"
	"errors"
)

// Taxonomy sentinels. Transport and non-2xx failures surface as
// *httpkit.StatusError or wrapped transport errors instead.
var (
	// ErrNoCredential is returned when no API key is configured.
	// User-actionable; never retried.
	ErrNoCredential = errors.New("no language-model credential configured")

	// ErrEmptyResponse is returned when the model replies with no content.
	ErrEmptyResponse = errors.New("language model returned no content")
)

// Client is the interface the interpreter depends on. Exactly one
// request is sent per call; responses are never streamed or paginated.
type Client interface {
	// Complete sends a system instruction plus one user message and
	// returns the model's text reply.
	Complete(ctx context.Context, system, user string) (string, error)
}
