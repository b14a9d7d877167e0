// Package strava implements the outbound REST and OAuth surface of the
// fitness provider.
package strava

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RateLimitError signals the provider throttled us. The caller must abort the
// remainder of its batch instead of retrying per item.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider rate limited (retry after %s)", e.RetryAfter)
	}
	return "provider rate limited"
}

// IsRateLimited reports whether err carries a rate-limit condition.
func IsRateLimited(err error) bool {
	var rl *RateLimitError
	return errors.As(err, &rl)
}

// Client talks to the provider's REST API and OAuth token endpoint.
type Client struct {
	clientID     string
	clientSecret string
	baseURL      string
	oauthURL     string
	httpClient   *http.Client
}

// Option configures optional client behaviour.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL overrides the REST base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithOAuthURL overrides the token-exchange URL.
func WithOAuthURL(u string) Option {
	return func(c *Client) { c.oauthURL = u }
}

// NewClient constructs a Client. Missing client credentials are a fatal
// misconfiguration and refuse construction.
func NewClient(clientID, clientSecret string, opts ...Option) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("strava: client id and secret are required")
	}
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		baseURL:      "https://www.strava.com/api/v3",
		oauthURL:     "https://www.strava.com/oauth/token",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// RefreshToken exchanges a refresh token for a fresh credential pair.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (TokenGrant, error) {
	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.oauthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenGrant{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TokenGrant{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return TokenGrant{}, fmt.Errorf("token exchange: %w", err)
	}

	var payload struct {
		AccessToken  *string `json:"access_token"`
		RefreshToken *string `json:"refresh_token"`
		ExpiresAt    *int64  `json:"expires_at"`
		Scope        *string `json:"scope"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return TokenGrant{}, fmt.Errorf("token exchange: decode response: %w", err)
	}
	if payload.AccessToken == nil || payload.RefreshToken == nil || payload.ExpiresAt == nil || payload.Scope == nil {
		return TokenGrant{}, errors.New("token exchange: response missing required fields")
	}

	return TokenGrant{
		AccessToken:  *payload.AccessToken,
		RefreshToken: *payload.RefreshToken,
		ExpiresAt:    time.Unix(*payload.ExpiresAt, 0).UTC(),
		Scope:        *payload.Scope,
	}, nil
}

// ListActivities returns the athlete's activities recorded after the lower
// bound, newest page first per provider semantics.
func (c *Client) ListActivities(ctx context.Context, accessToken string, after time.Time, perPage int) ([]Activity, error) {
	if perPage <= 0 {
		perPage = 50
	}
	endpoint := fmt.Sprintf("%s/athlete/activities?after=%d&per_page=%d", c.baseURL, after.Unix(), perPage)

	body, err := c.get(ctx, accessToken, endpoint)
	if err != nil {
		return nil, err
	}

	// A non-array body is a fetch failure, never "zero activities".
	var activities []Activity
	if err := json.Unmarshal(body, &activities); err != nil {
		return nil, fmt.Errorf("list activities: malformed response: %w", err)
	}
	return activities, nil
}

// GetActivity fetches a single activity by its external id.
func (c *Client) GetActivity(ctx context.Context, accessToken string, externalID int64) (Activity, error) {
	endpoint := fmt.Sprintf("%s/activities/%d", c.baseURL, externalID)

	body, err := c.get(ctx, accessToken, endpoint)
	if err != nil {
		return Activity{}, err
	}

	var activity Activity
	if err := json.Unmarshal(body, &activity); err != nil {
		return Activity{}, fmt.Errorf("get activity %d: malformed response: %w", externalID, err)
	}
	if activity.ID == 0 {
		return Activity{}, fmt.Errorf("get activity %d: response missing id", externalID)
	}
	return activity, nil
}

func (c *Client) get(ctx context.Context, accessToken, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{RetryAfter: retryAfter(resp)}
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		// The provider has surfaced throttling under other statuses
		// (403) with the fault spelled out in the body.
		if isRateLimitFault(body) {
			return &RateLimitError{RetryAfter: retryAfter(resp)}
		}
		return fmt.Errorf("provider error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func isRateLimitFault(body []byte) bool {
	var fault struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &fault); err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(fault.Message), "Rate Limit Exceeded")
}

func retryAfter(resp *http.Response) time.Duration {
	raw := resp.Header.Get("Retry-After")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
