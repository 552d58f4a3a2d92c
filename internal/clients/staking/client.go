// Package staking provides the client for the subnet staking API.
package staking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
)

// Client for the staking network API. It covers the two calls the daemon
// needs: announcing a new strategy revision and pulling PnL history for the
// performance monitor. Failures are recoverable; callers retry on the next
// scheduled cycle.
type Client struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a new staking API client
func NewClient(baseURL string, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "staking_api").Logger(),
	}
}

// PnLPoint is one daily swap-value observation for a hotkey.
type PnLPoint struct {
	Date      string  `json:"date"`
	SwapClose float64 `json:"swap_close"`
}

// SubmitStrategy announces that a new strategy revision exists for a hotkey.
func (c *Client) SubmitStrategy(ctx context.Context, hotkey string) error {
	endpoint := fmt.Sprintf("%s/rev/%s", c.baseURL, url.PathEscape(hotkey))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build revision request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("revision request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("revision request returned %d: %s", resp.StatusCode, string(body))
	}

	c.log.Info().Str("hotkey", hotkey).Msg("Strategy revision submitted")
	return nil
}

// GetPnL fetches daily swap values for a hotkey, oldest first.
func (c *Client) GetPnL(ctx context.Context, hotkey string) ([]PnLPoint, error) {
	endpoint := fmt.Sprintf("%s/pnl/%s", c.baseURL, url.PathEscape(hotkey))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build pnl request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pnl request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pnl request returned %d", resp.StatusCode)
	}

	var points []PnLPoint
	if err := json.NewDecoder(resp.Body).Decode(&points); err != nil {
		return nil, fmt.Errorf("failed to decode pnl response: %w", err)
	}

	return points, nil
}
