package source

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pressworks/covscan/pkg/search"
)

const (
	maxQueriesPerSource = 3
	maxResultsPerQuery  = 10
)

// WebSearch discovers coverage through the Tavily search API: one query per
// configured keyword (capped at three), or a single domain-scoped query when
// the source has no keywords.
type WebSearch struct {
	search       *search.Client
	costPerQuery decimal.Decimal
	logger       *zap.Logger
}

// NewWebSearch creates the web-search connector. costPerQuery feeds the scan
// report's cost estimate.
func NewWebSearch(client *search.Client, costPerQuery decimal.Decimal, logger *zap.Logger) *WebSearch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSearch{search: client, costPerQuery: costPerQuery, logger: logger}
}

func (w *WebSearch) Family() string { return "websearch" }

// Fetch runs the source's queries in order. A query failure after earlier
// queries already produced candidates ends the fetch but keeps the partial
// results; only a fetch that yields nothing at all reports an error.
func (w *WebSearch) Fetch(ctx context.Context, r Request) (*FetchResult, error) {
	apiKey, ok := r.Credentials.Get("tavily")
	if !ok {
		return nil, fmt.Errorf("tavily: %w", ErrMissingCredential)
	}

	cfg := r.Config.Search
	queries := buildQueries(cfg)

	result := &FetchResult{Cost: decimal.Zero}
	opts := search.SearchOptions{MaxResults: maxResultsPerQuery}
	if cfg.Domain != "" {
		opts.IncludeDomains = []string{cfg.Domain}
	}

	var firstErr error
	for _, query := range queries {
		// The scan budget is carried on the context deadline; stop issuing
		// queries once it is gone and let the partial results stand.
		if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) <= 0 {
			break
		}

		result.Queries++
		result.Cost = result.Cost.Add(w.costPerQuery)

		hits, err := w.search.Search(ctx, apiKey, query, opts)
		if err != nil {
			if len(result.Candidates) == 0 {
				firstErr = err
			}
			w.logger.Warn("search query failed",
				zap.String("query", query), zap.Error(err))
			break
		}

		for _, hit := range hits {
			if hit.URL == "" {
				continue
			}
			result.Candidates = append(result.Candidates, Candidate{
				URL:             hit.URL,
				Title:           hit.Title,
				Snippet:         truncate(hit.Content, 500),
				EngineRelevance: hit.Score,
				Query:           query,
			})
		}
	}

	if len(result.Candidates) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return result, nil
}

func buildQueries(cfg *SearchConfig) []string {
	if len(cfg.Keywords) == 0 {
		return []string{fmt.Sprintf("site:%s", cfg.Domain)}
	}

	keywords := cfg.Keywords
	if len(keywords) > maxQueriesPerSource {
		keywords = keywords[:maxQueriesPerSource]
	}

	queries := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		queries = append(queries, kw)
	}
	return queries
}
