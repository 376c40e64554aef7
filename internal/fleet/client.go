// Package fleet talks to the vehicle backend: listing cars, waking
// them, reading telemetry, and sending navigation and climate
// commands. Tesla tokens ride on every request and refreshed pairs
// handed back by the upstream are captured transparently.
package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexlifshitz/teslanav/internal/httpkit"
)

const (
	headerAccessToken  = "X-Tesla-Access-Token"
	headerRefreshToken = "X-Tesla-Refresh-Token"
)

// Client issues vehicle operations against the backend.
type Client struct {
	baseURL    string
	tokens     *TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

func NewClient(baseURL string, tokens *TokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(60 * time.Second)),
		logger:     logger,
	}
}

// Vehicles lists the cars on the account. The upstream passes Tesla's
// listing through verbatim, so the payload is the Tesla envelope.
func (c *Client) Vehicles(ctx context.Context) ([]Vehicle, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/vehicles", nil, &raw); err != nil {
		return nil, fmt.Errorf("listing vehicles: %w", err)
	}
	var out []Vehicle
	if err := json.Unmarshal(unwrapResponse(raw), &out); err != nil {
		return nil, fmt.Errorf("listing vehicles: decoding response: %w", err)
	}
	return out, nil
}

// Wake asks the upstream to wake the vehicle and returns its state as
// reported in the response, which is usually still "asleep"; callers
// poll with WaitOnline afterwards.
func (c *Client) Wake(ctx context.Context, vehicleID string) (Vehicle, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/vehicles/"+url.PathEscape(vehicleID)+"/wake", nil, &raw); err != nil {
		return Vehicle{}, fmt.Errorf("waking vehicle %s: %w", vehicleID, err)
	}
	var out Vehicle
	if err := json.Unmarshal(unwrapResponse(raw), &out); err != nil {
		return Vehicle{}, fmt.Errorf("waking vehicle %s: decoding response: %w", vehicleID, err)
	}
	return out, nil
}

// unwrapResponse strips the Tesla {"response": ...} wrapper when
// present and returns the payload unchanged otherwise.
func unwrapResponse(raw json.RawMessage) json.RawMessage {
	var env struct {
		Response json.RawMessage `json:"response"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Response) > 0 {
		return env.Response
	}
	return raw
}

// VehicleData reads the live telemetry snapshot. A sleeping car makes
// the upstream answer 408; on that status the car is woken and the
// read retried once.
func (c *Client) VehicleData(ctx context.Context, vehicleID string) (VehicleStatus, error) {
	path := "/vehicles/" + url.PathEscape(vehicleID) + "/vehicle_data"

	var out VehicleStatus
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	if httpkit.HasStatusCode(err, http.StatusRequestTimeout) {
		c.logger.Debug("vehicle asleep, waking for telemetry", "vehicle_id", vehicleID)
		if _, werr := c.Wake(ctx, vehicleID); werr != nil {
			return VehicleStatus{}, fmt.Errorf("reading vehicle data: %w", err)
		}
		if werr := WaitOnline(ctx, c, vehicleID); werr != nil {
			return VehicleStatus{}, fmt.Errorf("reading vehicle data: %w", werr)
		}
		err = c.do(ctx, http.MethodGet, path, nil, &out)
	}
	if err != nil {
		return VehicleStatus{}, fmt.Errorf("reading vehicle data: %w", err)
	}
	return out, nil
}

// Navigate sends the ordered stop addresses to the car's navigation
// system. The upstream queues them as successive destinations, so
// order is meaningful.
func (c *Client) Navigate(ctx context.Context, vehicleID string, addresses []string) error {
	if len(addresses) == 0 {
		return fmt.Errorf("navigate vehicle %s: no addresses", vehicleID)
	}
	body := struct {
		Stops []string `json:"stops"`
	}{Stops: addresses}
	if err := c.do(ctx, http.MethodPost, "/vehicles/"+url.PathEscape(vehicleID)+"/navigate", body, nil); err != nil {
		return fmt.Errorf("navigating vehicle %s: %w", vehicleID, err)
	}
	return nil
}

// Climate turns preconditioning on or off. targetTempC is only
// meaningful when turning it on.
func (c *Client) Climate(ctx context.Context, vehicleID string, on bool, targetTempC float64) error {
	body := struct {
		On    bool    `json:"on"`
		TempC float64 `json:"temp_c"`
	}{On: on, TempC: targetTempC}
	if err := c.do(ctx, http.MethodPost, "/vehicles/"+url.PathEscape(vehicleID)+"/command/climate", body, nil); err != nil {
		return fmt.Errorf("climate command for vehicle %s: %w", vehicleID, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Re-read the pair per request: a rotation captured by a parallel
	// command must be visible to the next call.
	tok := c.tokens.Current()
	if tok.AccessToken != "" {
		req.Header.Set(headerAccessToken, tok.AccessToken)
	}
	if tok.RefreshToken != "" {
		req.Header.Set(headerRefreshToken, tok.RefreshToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	c.captureRotation(resp)

	if resp.StatusCode != http.StatusOK {
		return httpkit.NewStatusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// captureRotation stores a refreshed token pair the upstream returned
// on this response, if any.
func (c *Client) captureRotation(resp *http.Response) {
	access := resp.Header.Get(headerAccessToken)
	refresh := resp.Header.Get(headerRefreshToken)
	if access == "" && refresh == "" {
		return
	}
	c.logger.Debug("captured rotated tesla tokens")
	c.tokens.Update(Tokens{AccessToken: access, RefreshToken: refresh})
}
