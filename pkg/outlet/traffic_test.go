package outlet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pressworks/covscan/pkg/search"
	"github.com/pressworks/covscan/pkg/source"
)

func TestRefreshFromProfilePage(t *testing.T) {
	t.Parallel()

	profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<h1>ign.com</h1>
			<p>ign.com receives about 12,500,000 visitors each month</p>
		</body></html>`))
	}))
	defer profile.Close()

	c := NewClassifier(nil, profile.URL+"/info/", nil)
	report := c.Refresh(context.Background(), "ign.com", nil)

	if report.Method != MethodHypestatHTML {
		t.Fatalf("method = %s, want %s (error: %s)", report.Method, MethodHypestatHTML, report.Error)
	}
	if report.MonthlyUniqueVisitors != 12_500_000 {
		t.Fatalf("visitors = %d, want 12500000", report.MonthlyUniqueVisitors)
	}
	if report.SuggestedTier != "A" {
		t.Fatalf("tier = %s, want A", report.SuggestedTier)
	}
	if report.CheckedAt.IsZero() {
		t.Fatal("expected checked_at to be set")
	}
}

func TestRefreshFallsBackToSearch(t *testing.T) {
	t.Parallel()

	// Profile page and extraction yield nothing; the search stage finds the
	// count in a result snippet.
	profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer profile.Close()

	tavily := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/extract":
			json.NewEncoder(w).Encode(map[string]any{"results": []any{}})
		case "/search":
			json.NewEncoder(w).Encode(map[string]any{
				"results": []map[string]any{
					{
						"title":   "niche-blog.example Traffic",
						"url":     "https://traffic.example/info/niche-blog.example",
						"content": "niche-blog.example has 85,000 monthly unique visitors",
						"score":   0.9,
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer tavily.Close()

	c := NewClassifier(search.NewClient(tavily.URL), profile.URL+"/info/", nil)
	creds := source.Credentials{"tavily": "test-key"}
	report := c.Refresh(context.Background(), "niche-blog.example", creds)

	if report.Method != MethodTavilySearch {
		t.Fatalf("method = %s, want %s (error: %s)", report.Method, MethodTavilySearch, report.Error)
	}
	if report.MonthlyUniqueVisitors != 85_000 {
		t.Fatalf("visitors = %d, want 85000", report.MonthlyUniqueVisitors)
	}
	if report.SuggestedTier != "D" {
		t.Fatalf("tier = %s, want D", report.SuggestedTier)
	}
}

func TestRefreshExhaustedChainReportsNone(t *testing.T) {
	t.Parallel()

	profile := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer profile.Close()

	// No tavily credential: only stage 1 runs.
	c := NewClassifier(nil, profile.URL+"/info/", nil)
	report := c.Refresh(context.Background(), "unknown.example", nil)

	if report.Method != MethodNone {
		t.Fatalf("method = %s, want %s", report.Method, MethodNone)
	}
	if report.MonthlyUniqueVisitors != 0 {
		t.Fatalf("visitors = %d, want 0", report.MonthlyUniqueVisitors)
	}
	if report.Error == "" {
		t.Fatal("expected the last stage error to be reported")
	}
}
