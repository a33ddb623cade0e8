// Package server provides the HTTP API for triggering scans, refreshing
// outlet traffic and reviewing coverage items.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pressworks/covscan/internal/store"
	"github.com/pressworks/covscan/pkg/coverage"
	"github.com/pressworks/covscan/pkg/outlet"
	"github.com/pressworks/covscan/pkg/scan"
)

// Server provides the HTTP API.
type Server struct {
	store      store.Store
	scanner    *scan.Scanner
	classifier *outlet.Classifier
	port       int
	logger     *zap.Logger
}

// New creates a new HTTP server.
func New(st store.Store, scanner *scan.Scanner, classifier *outlet.Classifier, port int, logger *zap.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		store:      st,
		scanner:    scanner,
		classifier: classifier,
		port:       port,
		logger:     logger,
	}
}

// ListenAndServe starts the HTTP server and blocks until it fails.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// Run starts the HTTP server and shuts it down gracefully when ctx is
// cancelled, letting in-flight requests drain.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

// Handler returns the API routing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/scan", s.handleScan)
	mux.HandleFunc("/api/v1/traffic/refresh", s.handleTrafficRefresh)
	mux.HandleFunc("/api/v1/items", s.handleItems)
	mux.HandleFunc("/api/v1/items/status", s.handleItemStatus)
	mux.HandleFunc("/api/v1/sources", s.handleSources)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		SourceID int64 `json:"source_id"`
		ScanAll  bool  `json:"scan_all"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.SourceID <= 0 && !req.ScanAll {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "source_id or scan_all required"})
		return
	}

	report, err := s.scanner.Run(r.Context(), scan.Options{SourceID: req.SourceID, All: req.ScanAll})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "source not found"})
			return
		}
		if errors.Is(err, scan.ErrNoTarget) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results":        report.Results,
		"total_found":    report.TotalFound(),
		"total_inserted": report.TotalInserted(),
		"total_cost":     report.TotalCost(),
		"duration_ms":    report.DurationMS,
	})
}

// trafficResponse is the refresh report with the persisted outlet row beside
// it; the report fields sit at the top level.
type trafficResponse struct {
	*outlet.Report
	UpdatedOutlet *store.Outlet `json:"updated_outlet,omitempty"`
}

func (s *Server) handleTrafficRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		OutletID int64  `json:"outlet_id"`
		Domain   string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.OutletID <= 0 && req.Domain == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "outlet_id or domain required"})
		return
	}

	ctx := r.Context()

	// Resolve the outlet row so a successful refresh can be persisted.
	var target *store.Outlet
	if req.OutletID > 0 {
		o, err := s.store.GetOutlet(ctx, req.OutletID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "outlet not found"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		target = o
		if req.Domain == "" {
			req.Domain = o.Domain
		}
	} else if o, err := s.store.GetOutletByDomain(ctx, req.Domain); err == nil {
		target = o
	}

	creds, err := s.store.Credentials(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	report := s.classifier.Refresh(ctx, req.Domain, creds)

	resp := trafficResponse{Report: report}
	if target != nil && report.MonthlyUniqueVisitors > 0 {
		err := s.store.UpdateOutletTraffic(ctx, target.ID,
			report.MonthlyUniqueVisitors, report.SuggestedTier, report.CheckedAt)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if updated, err := s.store.GetOutlet(ctx, target.ID); err == nil {
			resp.UpdatedOutlet = updated
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleItemStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		IDs    []string `json:"ids"`
		Status string   `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ids required"})
		return
	}

	target := coverage.ApprovalStatus(req.Status)
	if !coverage.ManualTarget(target) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("status %q is not operator-settable", req.Status),
		})
		return
	}

	updated, err := s.store.UpdateItemStatuses(r.Context(), req.IDs, coverage.AllowedFrom(target), target)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"updated":   updated,
		"requested": len(req.IDs),
	})
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	opts := store.ItemListOpts{Limit: 100}
	if status := r.URL.Query().Get("status"); status != "" {
		st := coverage.ApprovalStatus(status)
		if !st.Valid() {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
			return
		}
		opts.Status = st
	}
	if v := r.URL.Query().Get("client_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.ClientID = id
		}
	}
	if v := r.URL.Query().Get("game_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.GameID = id
		}
	}
	if since := r.URL.Query().Get("since"); since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			opts.Since = t
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}

	items, err := s.store.ListItems(r.Context(), opts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  items,
		"count": len(items),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	opts := store.SourceListOpts{}
	if r.URL.Query().Get("active") == "true" {
		opts.ActiveOnly = true
	}
	if freq := r.URL.Query().Get("frequency"); freq != "" {
		opts.Frequency = freq
	}

	sources, err := s.store.ListSources(r.Context(), opts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  sources,
		"count": len(sources),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
