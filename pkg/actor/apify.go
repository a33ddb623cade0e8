// Package actor wraps the Apify platform API used to run hosted
// social-platform scraper actors.
package actor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.apify.com"

// Client calls the Apify HTTP API. Like the search client, the token is
// passed per call from the run's credential snapshot.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates an Apify client. An empty baseURL selects the production
// endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		// Actor runs block until the dataset is ready, so this timeout is
		// deliberately longer than the per-request norm.
		client:  &http.Client{Timeout: 120 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// RunSync starts an actor run, waits for it to finish, and returns the
// dataset items it produced.
func (c *Client) RunSync(ctx context.Context, token, actorID string, input any) ([]map[string]any, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal actor input: %w", err)
	}

	reqURL := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		c.baseURL, url.PathEscape(actorID), url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create actor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "covscan/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("run actor %s: %w", actorID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("actor %s status %d", actorID, resp.StatusCode)
	}

	var items []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode actor %s dataset: %w", actorID, err)
	}
	return items, nil
}
