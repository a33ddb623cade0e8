// Package search wraps the Tavily web-search API: query search for the
// websearch connector and page extraction for the traffic fallback chain.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.tavily.com"

// Client calls the Tavily HTTP API. The API key is not stored on the client:
// credentials are resolved per run and passed into each call, which keeps the
// client shareable and unit-testable with fake keys.
type Client struct {
	client  *http.Client
	baseURL string
}

// NewClient creates a Tavily client. An empty baseURL selects the production
// endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Result is one search hit. Score is the engine-provided relevance in [0,1].
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SearchOptions bounds one search call.
type SearchOptions struct {
	MaxResults     int
	IncludeDomains []string
}

// Search runs one query and returns its hits.
func (c *Client) Search(ctx context.Context, apiKey, query string, opts SearchOptions) ([]Result, error) {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}

	payload := map[string]any{
		"api_key":     apiKey,
		"query":       query,
		"max_results": opts.MaxResults,
	}
	if len(opts.IncludeDomains) > 0 {
		payload["include_domains"] = opts.IncludeDomains
	}

	var resp struct {
		Results []Result `json:"results"`
	}
	if err := c.post(ctx, "/search", payload, &resp); err != nil {
		return nil, fmt.Errorf("tavily search %q: %w", query, err)
	}
	return resp.Results, nil
}

// Extract fetches the readable content of a single URL through Tavily's
// extraction endpoint.
func (c *Client) Extract(ctx context.Context, apiKey, pageURL string) (string, error) {
	payload := map[string]any{
		"api_key": apiKey,
		"urls":    []string{pageURL},
	}

	var resp struct {
		Results []struct {
			URL        string `json:"url"`
			RawContent string `json:"raw_content"`
		} `json:"results"`
	}
	if err := c.post(ctx, "/extract", payload, &resp); err != nil {
		return "", fmt.Errorf("tavily extract %s: %w", pageURL, err)
	}
	if len(resp.Results) == 0 {
		return "", fmt.Errorf("tavily extract %s: no content", pageURL)
	}
	return resp.Results[0].RawContent, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "covscan/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
