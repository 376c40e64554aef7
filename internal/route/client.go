// Package route talks to the resolution backend: the remote pass that
// turns category-search stops into concrete places and computes real
// drive time, distance, and preference-constrained routing.
package route

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexlifshitz/teslanav/internal/httpkit"
	"github.com/alexlifshitz/teslanav/internal/trip"
)

var (
	// ErrDecode is returned when the backend's response body does not
	// match the expected schema.
	ErrDecode = errors.New("malformed resolution response")

	// ErrOptimizeFailed wraps any optimization failure. Callers keep
	// the existing stop order when they see it.
	ErrOptimizeFailed = errors.New("stop order optimization failed")
)

// minOptimizeStops is the stop count below which reordering is a no-op.
const minOptimizeStops = 3

// Client is a resolution backend client.
type Client struct {
	baseURL string
	// googleMapsKey, when set, is forwarded via the X-Google-Maps-Key
	// header so the backend uses the caller's key instead of its own.
	googleMapsKey string
	httpClient    *http.Client
	logger        *slog.Logger
}

// NewClient creates a resolution backend client.
func NewClient(baseURL, googleMapsKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:       baseURL,
		googleMapsKey: googleMapsKey,
		logger:        logger.With("component", "route"),
		// Resolution geocodes every stop; give it room.
		httpClient: httpkit.NewClient(httpkit.WithTimeout(60 * time.Second)),
	}
}

// NeedsResolution reports whether an itinerary requires the remote
// resolution pass: any search-type stop, any preference flag, or more
// than one stop. A single specific stop with no preferences is used
// as-is, skipping a network round trip for the common single-destination
// case.
func NeedsResolution(it trip.Itinerary) bool {
	if len(it.Stops) > 1 {
		return true
	}
	if it.Preferences.Any() {
		return true
	}
	for _, s := range it.Stops {
		if s.IsSearch() {
			return true
		}
	}
	return false
}

type routeRequest struct {
	Origin      string                `json:"origin,omitempty"`
	Stops       []trip.Stop           `json:"stops"`
	Preferences trip.RoutePreferences `json:"preferences"`
}

type directionsSummary struct {
	TotalDurationMinutes *int     `json:"totalDurationMinutes"`
	TotalDistanceKm      *float64 `json:"totalDistanceKm"`
}

type routeResponse struct {
	Stops      []trip.Stop        `json:"stops"`
	Directions *directionsSummary `json:"directions"`
}

// Resolve posts origin, stops, and preferences to the backend and
// returns the enriched route. The returned stop list carries the same
// identity set as the input.
func (c *Client) Resolve(ctx context.Context, stops []trip.Stop, origin string, prefs trip.RoutePreferences) (*trip.ResolvedRoute, error) {
	var resp routeResponse
	if err := c.post(ctx, "/route", routeRequest{Origin: origin, Stops: stops, Preferences: prefs}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Stops) == 0 {
		return nil, fmt.Errorf("%w: no stops in response", ErrDecode)
	}

	resolved := &trip.ResolvedRoute{Stops: resp.Stops}
	if resp.Directions != nil {
		resolved.TotalDriveMinutes = resp.Directions.TotalDurationMinutes
		resolved.TotalDistanceKm = resp.Directions.TotalDistanceKm
	}

	c.logger.Debug("route resolved",
		"stops", len(resolved.Stops),
		"has_totals", resp.Directions != nil,
	)
	return resolved, nil
}

type optimizeRequest struct {
	Origin string      `json:"origin,omitempty"`
	Stops  []trip.Stop `json:"stops"`
}

// OptimizeOrder asks the backend to reorder stops for minimal total
// drive. Below three stops it returns the input unchanged without a
// network call. On failure, or if the backend gains or loses a stop,
// it returns ErrOptimizeFailed so the caller keeps the current order.
func (c *Client) OptimizeOrder(ctx context.Context, stops []trip.Stop, origin string) ([]trip.Stop, error) {
	if len(stops) < minOptimizeStops {
		return stops, nil
	}

	var resp struct {
		Stops []trip.Stop `json:"stops"`
	}
	if err := c.post(ctx, "/route/optimize-order", optimizeRequest{Origin: origin, Stops: stops}, &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOptimizeFailed, err)
	}

	if !trip.SameIDSet(stops, resp.Stops) {
		return nil, fmt.Errorf("%w: backend changed the stop identity set", ErrOptimizeFailed)
	}

	c.logger.Debug("stop order optimized", "stops", len(resp.Stops))
	return resp.Stops, nil
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.googleMapsKey != "" {
		req.Header.Set("X-Google-Maps-Key", c.googleMapsKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return httpkit.NewStatusError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return nil
}
