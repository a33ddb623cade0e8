package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pressworks/covscan/internal/store"
	"github.com/pressworks/covscan/pkg/coverage"
	"github.com/pressworks/covscan/pkg/outlet"
	"github.com/pressworks/covscan/pkg/scan"
	"github.com/pressworks/covscan/pkg/source"
)

type testEnv struct {
	store   *store.SQLiteStore
	srv     *Server
	handler http.Handler
	profile *httptest.Server

	// profileHandler backs the traffic profile fixture; tests swap it in
	// before issuing requests.
	profileHandler http.HandlerFunc
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	env := &testEnv{store: st, profileHandler: http.NotFound}

	// Offline traffic profile endpoint so refresh requests stay local.
	env.profile = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.profileHandler(w, r)
	}))
	t.Cleanup(env.profile.Close)

	scanner := scan.New(st, map[string]source.Connector{}, scan.Config{}, nil, nil)
	classifier := outlet.NewClassifier(nil, env.profile.URL+"/info/", nil)
	env.srv = New(st, scanner, classifier, 0, nil)
	env.handler = env.srv.Handler()

	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) insertItem(t *testing.T, status coverage.ApprovalStatus) *store.CoverageItem {
	t.Helper()
	item := &store.CoverageItem{
		ID:             uuid.NewString(),
		URL:            "https://example.com/" + uuid.NewString(),
		NormalizedURL:  "https://example.com/" + uuid.NewString(),
		Title:          "coverage",
		ApprovalStatus: status,
		SourceType:     source.TypeFeed,
		DiscoveredAt:   time.Now().UTC(),
	}
	if _, err := e.store.InsertItem(context.Background(), item); err != nil {
		t.Fatalf("insert item: %v", err)
	}
	return item
}

func TestHealth(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestScanValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"no target", `{}`, http.StatusBadRequest},
		{"unknown source", `{"source_id": 99}`, http.StatusNotFound},
		{"scan all with no sources", `{"scan_all": true}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/scan", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body: %s)", rec.Code, tt.want, rec.Body)
			}
		})
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/scan", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET scan status = %d, want 405", rec.Code)
	}
}

func TestItemStatusUpdate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	pending := env.insertItem(t, coverage.StatusPendingReview)
	terminal := env.insertItem(t, coverage.StatusManuallyApproved)

	body, _ := json.Marshal(map[string]any{
		"ids":    []string{pending.ID, terminal.ID},
		"status": "rejected",
	})
	rec := env.do(t, http.MethodPost, "/api/v1/items/status", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}

	var resp struct {
		Updated   int64 `json:"updated"`
		Requested int   `json:"requested"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Updated != 1 || resp.Requested != 2 {
		t.Fatalf("updated/requested = %d/%d, want 1/2", resp.Updated, resp.Requested)
	}

	got, err := env.store.GetItem(context.Background(), pending.ID)
	if err != nil {
		t.Fatalf("get item: %v", err)
	}
	if got.ApprovalStatus != coverage.StatusRejected {
		t.Fatalf("item status = %s, want rejected", got.ApprovalStatus)
	}
}

func TestItemStatusValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"malformed body", `{`},
		{"no ids", `{"ids": [], "status": "rejected"}`},
		{"non-operator status", `{"ids": ["x"], "status": "auto_approved"}`},
		{"unknown status", `{"ids": ["x"], "status": "bogus"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/api/v1/items/status", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body: %s)", rec.Code, rec.Body)
			}
		})
	}
}

func TestListItems(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	env.insertItem(t, coverage.StatusPendingReview)
	env.insertItem(t, coverage.StatusAutoApproved)

	rec := env.do(t, http.MethodGet, "/api/v1/items?status=pending_review", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/items?status=bogus", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown status filter = %d, want 400", rec.Code)
	}
}

func TestTrafficRefreshValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodPost, "/api/v1/traffic/refresh", `{`); rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/traffic/refresh", `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing target = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/traffic/refresh", `{"outlet_id": 42}`); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown outlet = %d, want 404", rec.Code)
	}
}

func TestTrafficRefreshByDomain(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// No data anywhere in the chain: the refresh still succeeds with an
	// explanatory report.
	rec := env.do(t, http.MethodPost, "/api/v1/traffic/refresh", `{"domain": "unknown.example"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}

	// The report fields sit flat at the top level of the response.
	var resp outlet.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Method != outlet.MethodNone {
		t.Fatalf("method = %s, want none", resp.Method)
	}
	if resp.Domain != "unknown.example" {
		t.Fatalf("domain = %s, want unknown.example", resp.Domain)
	}
}

func TestTrafficRefreshPersistsOutlet(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	o := &store.Outlet{Domain: "ign.com", Name: "IGN", Tier: "D"}
	if err := env.store.UpsertOutlet(context.Background(), o); err != nil {
		t.Fatalf("upsert outlet: %v", err)
	}

	env.profileHandler = func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>ign.com 12,500,000 monthly unique visitors</body></html>`))
	}

	rec := env.do(t, http.MethodPost, "/api/v1/traffic/refresh", fmt.Sprintf(`{"outlet_id": %d}`, o.ID))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body: %s)", rec.Code, rec.Body)
	}

	var resp struct {
		outlet.Report
		UpdatedOutlet *store.Outlet `json:"updated_outlet"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Method != outlet.MethodHypestatHTML {
		t.Fatalf("method = %s, want %s", resp.Method, outlet.MethodHypestatHTML)
	}
	if resp.MonthlyUniqueVisitors != 12_500_000 || resp.SuggestedTier != outlet.TierA {
		t.Fatalf("visitors/tier = %d/%s, want 12500000/A", resp.MonthlyUniqueVisitors, resp.SuggestedTier)
	}
	if resp.UpdatedOutlet == nil || resp.UpdatedOutlet.Tier != outlet.TierA {
		t.Fatalf("updated_outlet = %+v, want tier A", resp.UpdatedOutlet)
	}

	got, err := env.store.GetOutlet(context.Background(), o.ID)
	if err != nil {
		t.Fatalf("get outlet: %v", err)
	}
	if got.MonthlyUniqueVisitors != 12_500_000 || got.Tier != outlet.TierA {
		t.Fatalf("stored visitors/tier = %d/%s, want 12500000/A", got.MonthlyUniqueVisitors, got.Tier)
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("health request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v after cancel, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after context cancel")
	}
}

func TestListSources(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	src := &store.CoverageSource{
		Type:          source.TypeFeed,
		Name:          "test feed",
		ConfigJSON:    `{"feed":{"url":"x"}}`,
		ScanFrequency: store.FreqDaily,
		IsActive:      true,
	}
	if err := env.store.CreateSource(context.Background(), src); err != nil {
		t.Fatalf("create source: %v", err)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/sources?active=true", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
}
