// Package scan composes the coverage pipeline: it drives connectors over
// configured sources under a wall-clock budget, filters, scores and dedups
// their candidates, and tracks each source's run outcome.
package scan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pressworks/covscan/internal/store"
	"github.com/pressworks/covscan/pkg/alert"
	"github.com/pressworks/covscan/pkg/coverage"
	"github.com/pressworks/covscan/pkg/source"
)

// ErrNoTarget marks a scan trigger that names neither a source nor scan_all.
var ErrNoTarget = errors.New("scan requires a source id, a frequency bucket, or scan_all")

// Options selects which sources one invocation covers.
type Options struct {
	SourceID  int64
	All       bool
	Frequency string // scheduler bucket, e.g. "hourly"
}

// Config tunes one scanner instance.
type Config struct {
	// Budget is the wall-clock limit per invocation. Sources that do not
	// start before it elapses are skipped, not cancelled mid-flight.
	Budget time.Duration
	// DedupSeed is how many recent normalized URLs seed the working set.
	DedupSeed int

	ClusterSimilarity float64
	ClusterWindow     time.Duration
	ClusterLookback   time.Duration

	// FailureAlertThreshold is the consecutive-failure count at which a
	// source-health alert fires. Zero disables alerting.
	FailureAlertThreshold int
}

// Scanner is the top-level scan orchestrator.
type Scanner struct {
	store      store.Store
	connectors map[string]source.Connector // keyed by source.Type Family
	clusterer  *coverage.Clusterer
	alerts     *alert.Manager
	cfg        Config
	logger     *zap.Logger
}

// New creates a scanner over the given connector set.
func New(st store.Store, connectors map[string]source.Connector, cfg Config, alerts *alert.Manager, logger *zap.Logger) *Scanner {
	if cfg.Budget <= 0 {
		cfg.Budget = 50 * time.Second
	}
	if cfg.DedupSeed <= 0 {
		cfg.DedupSeed = 10000
	}
	if cfg.ClusterLookback <= 0 {
		cfg.ClusterLookback = 14 * 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scanner{
		store:      st,
		connectors: connectors,
		clusterer:  coverage.NewClusterer(cfg.ClusterSimilarity, cfg.ClusterWindow),
		alerts:     alerts,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run executes one scan invocation. Sources run sequentially; each one's
// outcome is recorded independently, so a failing source never aborts its
// siblings, and a run that exceeds its budget reports the remaining sources
// as skipped.
func (s *Scanner) Run(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()

	sources, err := s.resolveSources(ctx, opts)
	if err != nil {
		return nil, err
	}

	// Read-only reference snapshot for the whole run.
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	blacklist, err := s.store.ListBlacklist(ctx)
	if err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}
	urlSet, err := s.store.RecentNormalizedURLs(ctx, s.cfg.DedupSeed)
	if err != nil {
		return nil, fmt.Errorf("seed dedup set: %w", err)
	}

	// Connectors see the budget as a context deadline so they can stop
	// between sub-queries.
	runCtx, cancel := context.WithDeadline(ctx, start.Add(s.cfg.Budget))
	defer cancel()

	report := &Report{}
	for i := range sources {
		src := &sources[i]

		if time.Since(start) > s.cfg.Budget {
			report.Results = append(report.Results, SourceResult{
				Source:       src.Name,
				SourceID:     src.ID,
				Status:       StatusSkipped,
				CostEstimate: decimal.Zero,
				Error:        "scan budget exhausted",
			})
			continue
		}

		res := s.runSource(runCtx, src, creds, blacklist, urlSet)
		report.Results = append(report.Results, res)

		s.logger.Info("source scanned",
			zap.Int64("source_id", src.ID),
			zap.String("source", src.Name),
			zap.String("status", res.Status),
			zap.Int("found", res.Found),
			zap.Int("inserted", res.Inserted))
	}

	report.DurationMS = time.Since(start).Milliseconds()
	return report, nil
}

func (s *Scanner) resolveSources(ctx context.Context, opts Options) ([]store.CoverageSource, error) {
	switch {
	case opts.SourceID > 0:
		src, err := s.store.GetSource(ctx, opts.SourceID)
		if err != nil {
			return nil, err
		}
		return []store.CoverageSource{*src}, nil
	case opts.Frequency != "":
		return s.store.ListSources(ctx, store.SourceListOpts{ActiveOnly: true, Frequency: opts.Frequency})
	case opts.All:
		return s.store.ListSources(ctx, store.SourceListOpts{ActiveOnly: true})
	default:
		return nil, ErrNoTarget
	}
}

func (s *Scanner) runSource(ctx context.Context, src *store.CoverageSource, creds source.Credentials, blacklist []string, urlSet map[string]struct{}) SourceResult {
	res := SourceResult{
		Source:       src.Name,
		SourceID:     src.ID,
		Status:       StatusSuccess,
		CostEstimate: decimal.Zero,
	}

	cfg, err := source.ParseConfig(src.Type, src.ConfigJSON)
	if err != nil {
		s.failSource(ctx, src, &res, err)
		return res
	}

	conn := s.connectors[src.Type.Family()]
	if conn == nil {
		s.failSource(ctx, src, &res, fmt.Errorf("no connector for source type %q", src.Type))
		return res
	}

	fetched, err := conn.Fetch(ctx, source.Request{
		SourceType:  src.Type,
		Config:      cfg,
		Credentials: creds,
	})
	if errors.Is(err, source.ErrMissingCredential) {
		res.Status = StatusSkipped
		res.Error = err.Error()
		s.recordRun(ctx, src.ID, store.RunRecord{Status: StatusSkipped, Message: err.Error()})
		return res
	}
	if err != nil {
		s.failSource(ctx, src, &res, err)
		return res
	}

	res.Queries = fetched.Queries
	res.Found = len(fetched.Candidates)
	res.CostEstimate = fetched.Cost

	gameName, gameID, clientID := s.resolveBinding(ctx, src)
	filter := coverage.NewKeywordFilter(s.loadWhitelist(ctx, clientID, gameID), blacklist)

	for _, cand := range fetched.Candidates {
		if s.processCandidate(ctx, src, cand, filter, gameName, gameID, clientID, urlSet) {
			res.Inserted++
		}
	}

	s.recordRun(ctx, src.ID, store.RunRecord{
		Status:  StatusSuccess,
		Message: fmt.Sprintf("found %d, inserted %d", res.Found, res.Inserted),
		Found:   res.Found,
	})
	return res
}

// processCandidate runs one candidate through normalize, filter, score and
// insert. Returns whether a new item was written.
func (s *Scanner) processCandidate(ctx context.Context, src *store.CoverageSource, cand source.Candidate, filter *coverage.KeywordFilter, gameName string, gameID, clientID *int64, urlSet map[string]struct{}) bool {
	norm := coverage.NormalizeURL(cand.URL)
	if norm == "" {
		return false
	}
	if _, dup := urlSet[norm]; dup {
		return false
	}

	text := cand.Title + " " + cand.Snippet
	if filter.Blacklisted(text) {
		return false
	}

	score, reasoning := coverage.ScoreRelevance(coverage.ScoreInput{
		Title:           cand.Title,
		GameName:        gameName,
		EngineRelevance: cand.EngineRelevance,
		FromSearch:      src.Type == source.TypeWebSearch,
		Query:           cand.Query,
		HasWhitelist:    filter.HasWhitelist(),
		WhitelistMatch:  filter.WhitelistMatch(text),
	})

	outletID := src.OutletID
	if outletID == nil {
		if domain := coverage.CanonicalDomain(cand.URL); domain != "" {
			if o, err := s.store.GetOutletByDomain(ctx, domain); err == nil {
				outletID = &o.ID
			}
		}
	}

	meta, _ := json.Marshal(map[string]any{
		"query":            cand.Query,
		"engine_relevance": cand.EngineRelevance,
		"snippet":          cand.Snippet,
	})

	item := &store.CoverageItem{
		ID:                 uuid.NewString(),
		URL:                cand.URL,
		NormalizedURL:      norm,
		Title:              cand.Title,
		Snippet:            cand.Snippet,
		RelevanceScore:     score,
		RelevanceReasoning: reasoning,
		ApprovalStatus:     coverage.DetermineApprovalStatus(score),
		SourceType:         src.Type,
		SourceMetadataJSON: string(meta),
		OutletID:           outletID,
		GameID:             gameID,
		ClientID:           clientID,
		IsOriginal:         true,
		DiscoveredAt:       time.Now().UTC(),
	}
	if !cand.PublishedAt.IsZero() {
		published := cand.PublishedAt
		item.PublishDate = &published
	}

	inserted, err := s.store.InsertItem(ctx, item)
	if err != nil {
		s.logger.Warn("insert failed", zap.String("url", norm), zap.Error(err))
		return false
	}
	if inserted {
		urlSet[norm] = struct{}{}
	}
	return inserted
}

func (s *Scanner) resolveBinding(ctx context.Context, src *store.CoverageSource) (string, *int64, *int64) {
	if src.GameID == nil {
		return "", nil, nil
	}
	game, err := s.store.GetGame(ctx, *src.GameID)
	if err != nil {
		s.logger.Warn("game binding unresolved", zap.Int64("game_id", *src.GameID), zap.Error(err))
		return "", src.GameID, nil
	}
	return game.Name, src.GameID, &game.ClientID
}

// loadWhitelist fetches the whitelist for a resolved client binding. A
// source whose game binding did not resolve has no client, and therefore no
// whitelist: terms belonging to other clients must never reach its scoring.
func (s *Scanner) loadWhitelist(ctx context.Context, clientID, gameID *int64) []string {
	if clientID == nil || *clientID <= 0 {
		return nil
	}
	var gid int64
	if gameID != nil {
		gid = *gameID
	}
	terms, err := s.store.ListWhitelist(ctx, *clientID, gid)
	if err != nil {
		s.logger.Warn("whitelist load failed", zap.Error(err))
		return nil
	}
	return terms
}

func (s *Scanner) failSource(ctx context.Context, src *store.CoverageSource, res *SourceResult, err error) {
	res.Status = StatusFailed
	res.Error = err.Error()
	s.recordRun(ctx, src.ID, store.RunRecord{Status: StatusFailed, Message: err.Error()})
	s.maybeAlert(ctx, src.ID)
}

func (s *Scanner) recordRun(ctx context.Context, sourceID int64, run store.RunRecord) {
	run.At = time.Now().UTC()
	if err := s.store.RecordSourceRun(ctx, sourceID, run); err != nil {
		s.logger.Error("record run failed", zap.Int64("source_id", sourceID), zap.Error(err))
	}
}

// maybeAlert notifies operators when a source's failure streak reaches the
// threshold. Fires exactly at the crossing so a long streak does not spam.
func (s *Scanner) maybeAlert(ctx context.Context, sourceID int64) {
	if s.alerts == nil || !s.alerts.HasNotifiers() || s.cfg.FailureAlertThreshold <= 0 {
		return
	}

	src, err := s.store.GetSource(ctx, sourceID)
	if err != nil || src.ConsecutiveFailures != s.cfg.FailureAlertThreshold {
		return
	}

	lastRunAt := time.Now().UTC()
	if src.LastRunAt != nil {
		lastRunAt = *src.LastRunAt
	}
	n := &alert.Notification{
		SourceID:            src.ID,
		SourceName:          src.Name,
		SourceType:          string(src.Type),
		ConsecutiveFailures: src.ConsecutiveFailures,
		LastRunMessage:      src.LastRunMessage,
		LastRunAt:           lastRunAt,
	}
	if err := s.alerts.Broadcast(ctx, n); err != nil {
		s.logger.Warn("health alert failed", zap.Int64("source_id", src.ID), zap.Error(err))
	}
}

// ClusterRecent runs syndication clustering over recent items. It is
// deliberately decoupled from scans: clustering errors are logged and never
// block item insertion or approval transitions.
func (s *Scanner) ClusterRecent(ctx context.Context) error {
	since := time.Now().Add(-s.cfg.ClusterLookback)
	items, err := s.store.ListClusterCandidates(ctx, since)
	if err != nil {
		return fmt.Errorf("load cluster candidates: %w", err)
	}

	clusterItems := make([]coverage.ClusterItem, 0, len(items))
	for _, item := range items {
		ci := coverage.ClusterItem{
			ID:          item.ID,
			Title:       item.Title,
			PublishedAt: item.DiscoveredAt,
		}
		if item.OutletID != nil {
			ci.OutletID = *item.OutletID
		}
		if item.PublishDate != nil {
			ci.PublishedAt = *item.PublishDate
		}
		clusterItems = append(clusterItems, ci)
	}

	groups := s.clusterer.Cluster(clusterItems)
	for _, group := range groups {
		if err := s.store.ApplySyndicationGroup(ctx, group); err != nil {
			s.logger.Warn("syndication group not applied",
				zap.String("group", group.GroupID), zap.Error(err))
		}
	}

	if len(groups) > 0 {
		s.logger.Info("syndication clustering complete",
			zap.Int("items", len(clusterItems)), zap.Int("groups", len(groups)))
	}
	return nil
}
