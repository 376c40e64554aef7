package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alexlifshitz/teslanav/internal/httpkit"
)

const (
	oauthAuthorizeURL = "https://auth.tesla.com/oauth2/v3/authorize"
	oauthTokenURL     = "https://auth.tesla.com/oauth2/v3/token"
	oauthScopes       = "openid offline_access vehicle_device_data vehicle_cmds"
	oauthAudience     = "https://fleet-api.prd.na.vn.cloud.tesla.com"
)

// OAuthConfig holds the app registration needed for the authorization
// code flow.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// AuthorizeURL builds the URL the account owner opens in a browser to
// grant access. state is echoed back on the redirect and must be
// verified by the caller.
func (c OAuthConfig) AuthorizeURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", c.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", oauthScopes)
	q.Set("state", state)
	return oauthAuthorizeURL + "?" + q.Encode()
}

// ExchangeCode trades an authorization code for a token pair.
func (c OAuthConfig) ExchangeCode(ctx context.Context, code string) (Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", c.RedirectURI)
	form.Set("audience", oauthAudience)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, oauthTokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return Tokens{}, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := httpkit.NewClient(httpkit.WithTimeout(30 * time.Second))
	resp, err := client.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("exchanging code: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return Tokens{}, fmt.Errorf("exchanging code: %w", httpkit.NewStatusError(resp))
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return Tokens{}, fmt.Errorf("decoding token response: %w", err)
	}
	if tokens.AccessToken == "" {
		return Tokens{}, fmt.Errorf("token response missing access_token")
	}
	return tokens, nil
}
