// Package weather fetches the current outside temperature for a
// coordinate from the Open-Meteo forecast API. It needs no API key.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alexlifshitz/teslanav/internal/httpkit"
)

const DefaultBaseURL = "https://api.open-meteo.com"

// Current is the current-conditions snapshot for one coordinate.
type Current struct {
	TemperatureC  float64
	ApparentTempC float64
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(15 * time.Second)),
	}
}

// CurrentConditions returns the current and apparent temperature at
// the given coordinate.
func (c *Client) CurrentConditions(ctx context.Context, latitude, longitude float64) (Current, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(latitude, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(longitude, 'f', 4, 64))
	q.Set("current", "temperature_2m,apparent_temperature")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return Current{}, fmt.Errorf("creating weather request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Current{}, fmt.Errorf("fetching weather: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return Current{}, fmt.Errorf("fetching weather: %w", httpkit.NewStatusError(resp))
	}

	var payload struct {
		Current struct {
			Temperature2m       float64 `json:"temperature_2m"`
			ApparentTemperature float64 `json:"apparent_temperature"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Current{}, fmt.Errorf("decoding weather response: %w", err)
	}

	return Current{
		TemperatureC:  payload.Current.Temperature2m,
		ApparentTempC: payload.Current.ApparentTemperature,
	}, nil
}
