package source

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/shopspring/decimal"
)

// Feed polls a single RSS/Atom feed and turns each entry into a candidate.
type Feed struct {
	client   *http.Client
	parser   *gofeed.Parser
	lookback time.Duration
}

// NewFeed creates the feed-poll connector. lookback bounds how far back
// entries are accepted; older entries would already be in the corpus or are
// no longer actionable coverage.
func NewFeed(lookback time.Duration) *Feed {
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	return &Feed{
		client:   &http.Client{Timeout: 30 * time.Second},
		parser:   gofeed.NewParser(),
		lookback: lookback,
	}
}

func (f *Feed) Family() string { return "feed" }

func (f *Feed) Fetch(ctx context.Context, r Request) (*FetchResult, error) {
	feedURL := r.Config.Feed.URL

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request: %w", err)
	}
	req.Header.Set("User-Agent", "covscan/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", feedURL, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	result := &FetchResult{Queries: 1, Cost: decimal.Zero}
	cutoff := time.Now().Add(-f.lookback)

	for _, entry := range parsed.Items {
		published := time.Now().UTC()
		if entry.PublishedParsed != nil {
			published = entry.PublishedParsed.UTC()
		} else if entry.UpdatedParsed != nil {
			published = entry.UpdatedParsed.UTC()
		}
		if published.Before(cutoff) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}
		if link == "" {
			continue
		}

		result.Candidates = append(result.Candidates, Candidate{
			URL:         link,
			Title:       entry.Title,
			Snippet:     truncate(entry.Description, 500),
			PublishedAt: published,
		})
	}

	return result, nil
}
