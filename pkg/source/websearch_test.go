package source

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/pressworks/covscan/pkg/search"
)

func searchRequest(keywords ...string) Request {
	return Request{
		SourceType:  TypeWebSearch,
		Config:      &Config{Search: &SearchConfig{Keywords: keywords}},
		Credentials: Credentials{"tavily": "test-key"},
	}
}

func TestWebSearchFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"title": "Hollow Depths review", "url": "https://ign.com/a", "content": "snippet", "score": 0.91},
				{"title": "missing url is dropped", "url": "", "content": "", "score": 0.5},
			},
		})
	}))
	defer srv.Close()

	ws := NewWebSearch(search.NewClient(srv.URL), decimal.NewFromFloat(0.001), nil)
	res, err := ws.Fetch(context.Background(), searchRequest("hollow depths review"))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	if res.Queries != 1 {
		t.Fatalf("queries = %d, want 1", res.Queries)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(res.Candidates))
	}

	c := res.Candidates[0]
	if c.URL != "https://ign.com/a" || c.EngineRelevance != 0.91 {
		t.Fatalf("unexpected candidate: %+v", c)
	}
	if c.Query != "hollow depths review" {
		t.Fatalf("query not recorded: %q", c.Query)
	}
	if !res.Cost.Equal(decimal.NewFromFloat(0.001)) {
		t.Fatalf("cost = %s, want 0.001", res.Cost)
	}
}

func TestWebSearchPartialFailureKeepsResults(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{"title": "hit", "url": "https://example.com/a", "score": 0.8},
				},
			})
			return
		}
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ws := NewWebSearch(search.NewClient(srv.URL), decimal.NewFromFloat(0.001), nil)
	res, err := ws.Fetch(context.Background(), searchRequest("one", "two", "three"))
	if err != nil {
		t.Fatalf("partial failure should not error: %v", err)
	}

	if res.Queries != 2 {
		t.Fatalf("queries = %d, want 2 (successful first, failed second)", res.Queries)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1", len(res.Candidates))
	}
}

func TestWebSearchFirstQueryFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ws := NewWebSearch(search.NewClient(srv.URL), decimal.Zero, nil)
	if _, err := ws.Fetch(context.Background(), searchRequest("only query")); err == nil {
		t.Fatal("expected error when no query produced candidates")
	}
}

func TestWebSearchMissingCredential(t *testing.T) {
	t.Parallel()

	ws := NewWebSearch(search.NewClient("http://unused.invalid"), decimal.Zero, nil)
	req := searchRequest("query")
	req.Credentials = nil

	_, err := ws.Fetch(context.Background(), req)
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("error = %v, want ErrMissingCredential", err)
	}
}

func TestBuildQueries(t *testing.T) {
	t.Parallel()

	// Keyword list caps at three queries.
	got := buildQueries(&SearchConfig{Keywords: []string{"a", "b", "c", "d"}})
	if len(got) != 3 {
		t.Fatalf("expected 3 queries, got %v", got)
	}

	// No keywords falls back to a domain-scoped query.
	got = buildQueries(&SearchConfig{Domain: "ign.com"})
	if len(got) != 1 || got[0] != "site:ign.com" {
		t.Fatalf("unexpected domain query: %v", got)
	}
}
