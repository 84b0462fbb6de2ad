// Package health reads daily activity totals from the platform health API.
// The source is read-only and best-effort: a denied permission degrades the
// caller to the record store instead of failing.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"example.com/steps/internal/domain"
	"example.com/steps/internal/reconcile"
)

var _ reconcile.HealthSource = (*Client)(nil)

// Client queries the health aggregation endpoint over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client with a bounded request timeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Today fetches the user's steps/distance/active-calories accumulated since
// local midnight. Returns (nil, nil) when the API has no data for the day
// and ErrPermissionDenied when health access was not granted.
func (c *Client) Today(ctx context.Context, userID string, day time.Time) (*reconcile.DailyTotals, error) {
	url := fmt.Sprintf("%s/v1/users/%s/daily?date=%s", c.baseURL, userID, day.Format(domain.DayFormat))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, reconcile.ErrPermissionDenied
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("health api error (%d): %s", resp.StatusCode, body)
	}

	var payload struct {
		Steps          int64   `json:"steps"`
		DistanceKm     float64 `json:"distance_km"`
		ActiveCalories int64   `json:"active_calories"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	return &reconcile.DailyTotals{
		Steps:      payload.Steps,
		DistanceKm: payload.DistanceKm,
		Calories:   payload.ActiveCalories,
	}, nil
}
