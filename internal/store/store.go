package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pressworks/covscan/pkg/coverage"
	"github.com/pressworks/covscan/pkg/source"
)

// ErrNotFound marks lookups that matched no row.
var ErrNotFound = errors.New("not found")

// Scan frequency buckets a source can be scheduled into.
const (
	FreqHourly  = "hourly"
	Freq6Hourly = "6h"
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
)

// maxRunMessage bounds last_run_message; connector errors can carry whole
// response bodies.
const maxRunMessage = 500

// Client is a publisher client whose games are tracked.
type Client struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Game is one tracked title.
type Game struct {
	ID       int64  `db:"id" json:"id"`
	ClientID int64  `db:"client_id" json:"client_id"`
	Name     string `db:"name" json:"name"`
}

// Outlet is a media property resolved from coverage domains.
type Outlet struct {
	ID                    int64      `db:"id" json:"id"`
	Domain                string     `db:"domain" json:"domain"`
	Name                  string     `db:"name" json:"name"`
	MonthlyUniqueVisitors int        `db:"monthly_unique_visitors" json:"monthly_unique_visitors"`
	Tier                  string     `db:"tier" json:"tier"`
	Country               string     `db:"country" json:"country"`
	MetacriticStatus      string     `db:"metacritic_status" json:"metacritic_status"`
	TrafficCheckedAt      *time.Time `db:"traffic_checked_at" json:"traffic_checked_at,omitempty"`
}

// Keyword is one allow/deny list entry. Blacklist entries apply globally
// across clients; whitelist entries are scoped to their client/game.
type Keyword struct {
	ID       int64  `db:"id" json:"id"`
	ClientID *int64 `db:"client_id" json:"client_id,omitempty"`
	GameID   *int64 `db:"game_id" json:"game_id,omitempty"`
	Keyword  string `db:"keyword" json:"keyword"`
	Type     string `db:"keyword_type" json:"keyword_type"`
}

// CoverageSource is a configured, schedulable connector instance.
type CoverageSource struct {
	ID                  int64       `db:"id" json:"id"`
	Type                source.Type `db:"source_type" json:"source_type"`
	Name                string      `db:"name" json:"name"`
	ConfigJSON          string      `db:"config" json:"config"`
	OutletID            *int64      `db:"outlet_id" json:"outlet_id,omitempty"`
	GameID              *int64      `db:"game_id" json:"game_id,omitempty"`
	ScanFrequency       string      `db:"scan_frequency" json:"scan_frequency"`
	IsActive            bool        `db:"is_active" json:"is_active"`
	LastRunAt           *time.Time  `db:"last_run_at" json:"last_run_at,omitempty"`
	LastRunStatus       string      `db:"last_run_status" json:"last_run_status"`
	LastRunMessage      string      `db:"last_run_message" json:"last_run_message"`
	ItemsFoundLastRun   int         `db:"items_found_last_run" json:"items_found_last_run"`
	TotalItemsFound     int         `db:"total_items_found" json:"total_items_found"`
	ConsecutiveFailures int         `db:"consecutive_failures" json:"consecutive_failures"`
}

// CoverageItem is one discovered mention of a client's game.
type CoverageItem struct {
	ID                 string                  `db:"id" json:"id"`
	URL                string                  `db:"url" json:"url"`
	NormalizedURL      string                  `db:"normalized_url" json:"normalized_url"`
	Title              string                  `db:"title" json:"title"`
	Snippet            string                  `db:"snippet" json:"snippet"`
	PublishDate        *time.Time              `db:"publish_date" json:"publish_date,omitempty"`
	CoverageType       string                  `db:"coverage_type" json:"coverage_type"`
	Territory          string                  `db:"territory" json:"territory"`
	Sentiment          string                  `db:"sentiment" json:"sentiment"`
	RelevanceScore     int                     `db:"relevance_score" json:"relevance_score"`
	RelevanceReasoning string                  `db:"relevance_reasoning" json:"relevance_reasoning"`
	ApprovalStatus     coverage.ApprovalStatus `db:"approval_status" json:"approval_status"`
	SourceType         source.Type             `db:"source_type" json:"source_type"`
	SourceMetadataJSON string                  `db:"source_metadata" json:"source_metadata"`
	OutletID           *int64                  `db:"outlet_id" json:"outlet_id,omitempty"`
	GameID             *int64                  `db:"game_id" json:"game_id,omitempty"`
	ClientID           *int64                  `db:"client_id" json:"client_id,omitempty"`
	DuplicateGroupID   *string                 `db:"duplicate_group_id" json:"duplicate_group_id,omitempty"`
	IsOriginal         bool                    `db:"is_original" json:"is_original"`
	SyndicationCount   int                     `db:"syndication_count" json:"syndication_count"`
	DiscoveredAt       time.Time               `db:"discovered_at" json:"discovered_at"`
}

// RunRecord is one source run outcome for the run tracker.
type RunRecord struct {
	Status  string // success, skipped or failed
	Message string
	Found   int
	At      time.Time
}

// SourceListOpts controls source listing.
type SourceListOpts struct {
	ActiveOnly bool
	Frequency  string
}

// ItemListOpts controls item listing.
type ItemListOpts struct {
	Status   coverage.ApprovalStatus
	ClientID int64
	GameID   int64
	Since    time.Time
	Limit    int
}

// Store is the persistence interface.
type Store interface {
	GetSource(ctx context.Context, id int64) (*CoverageSource, error)
	ListSources(ctx context.Context, opts SourceListOpts) ([]CoverageSource, error)
	CreateSource(ctx context.Context, src *CoverageSource) error
	RecordSourceRun(ctx context.Context, id int64, run RunRecord) error

	InsertItem(ctx context.Context, item *CoverageItem) (bool, error)
	GetItem(ctx context.Context, id string) (*CoverageItem, error)
	ListItems(ctx context.Context, opts ItemListOpts) ([]CoverageItem, error)
	RecentNormalizedURLs(ctx context.Context, limit int) (map[string]struct{}, error)
	UpdateItemStatuses(ctx context.Context, ids []string, allowedFrom []coverage.ApprovalStatus, to coverage.ApprovalStatus) (int64, error)
	ListClusterCandidates(ctx context.Context, since time.Time) ([]CoverageItem, error)
	ApplySyndicationGroup(ctx context.Context, group coverage.SyndicationGroup) error

	GetOutlet(ctx context.Context, id int64) (*Outlet, error)
	GetOutletByDomain(ctx context.Context, domain string) (*Outlet, error)
	UpsertOutlet(ctx context.Context, o *Outlet) error
	UpdateOutletTraffic(ctx context.Context, id int64, visitors int, tier string, checkedAt time.Time) error

	ListBlacklist(ctx context.Context) ([]string, error)
	ListWhitelist(ctx context.Context, clientID, gameID int64) ([]string, error)
	AddKeyword(ctx context.Context, kw *Keyword) error

	CreateClient(ctx context.Context, c *Client) error
	CreateGame(ctx context.Context, g *Game) error
	GetGame(ctx context.Context, id int64) (*Game, error)

	SetCredential(ctx context.Context, service, apiKey string) error
	Credentials(ctx context.Context) (source.Credentials, error)

	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetSource(ctx context.Context, id int64) (*CoverageSource, error) {
	var src CoverageSource
	err := s.db.GetContext(ctx, &src, "SELECT * FROM coverage_sources WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get source %d: %w", id, err)
	}
	return &src, nil
}

func (s *SQLiteStore) ListSources(ctx context.Context, opts SourceListOpts) ([]CoverageSource, error) {
	b := sq.Select("*").From("coverage_sources").OrderBy("id")
	if opts.ActiveOnly {
		b = b.Where(sq.Eq{"is_active": true})
	}
	if opts.Frequency != "" {
		b = b.Where(sq.Eq{"scan_frequency": opts.Frequency})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build source query: %w", err)
	}

	var sources []CoverageSource
	if err := s.db.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return sources, nil
}

func (s *SQLiteStore) CreateSource(ctx context.Context, src *CoverageSource) error {
	if src.ConfigJSON == "" {
		src.ConfigJSON = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO coverage_sources (source_type, name, config, outlet_id, game_id, scan_frequency, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, src.Type, src.Name, src.ConfigJSON, src.OutletID, src.GameID, src.ScanFrequency, src.IsActive)
	if err != nil {
		return fmt.Errorf("create source %q: %w", src.Name, err)
	}
	src.ID, _ = res.LastInsertId()
	return nil
}

// RecordSourceRun persists one run outcome: timestamps, counters and the
// failure streak. Success resets consecutive_failures, failure increments
// it, a skip leaves it alone. The update is a single statement so it stays
// atomic and source-scoped under concurrent runners.
func (s *SQLiteStore) RecordSourceRun(ctx context.Context, id int64, run RunRecord) error {
	at := run.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	msg := run.Message
	if len(msg) > maxRunMessage {
		msg = msg[:maxRunMessage]
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE coverage_sources SET
			last_run_at = ?,
			last_run_status = ?,
			last_run_message = ?,
			items_found_last_run = ?,
			total_items_found = total_items_found + ?,
			consecutive_failures = CASE ?
				WHEN 'success' THEN 0
				WHEN 'failed' THEN consecutive_failures + 1
				ELSE consecutive_failures
			END
		WHERE id = ?
	`, at, run.Status, msg, run.Found, run.Found, run.Status, id)
	if err != nil {
		return fmt.Errorf("record run for source %d: %w", id, err)
	}
	return nil
}

// InsertItem inserts a coverage item unless its normalized URL is already
// present. The unique constraint is the authoritative dedup guard: the
// in-memory working set is only a pre-filter, and concurrent runs cannot
// double-insert the same URL. Returns whether a row was written.
func (s *SQLiteStore) InsertItem(ctx context.Context, item *CoverageItem) (bool, error) {
	if item.SourceMetadataJSON == "" {
		item.SourceMetadataJSON = "{}"
	}
	if item.DiscoveredAt.IsZero() {
		item.DiscoveredAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO coverage_items (
			id, url, normalized_url, title, snippet, publish_date,
			coverage_type, territory, sentiment,
			relevance_score, relevance_reasoning, approval_status,
			source_type, source_metadata, outlet_id, game_id, client_id,
			duplicate_group_id, is_original, syndication_count, discovered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(normalized_url) DO NOTHING
	`, item.ID, item.URL, item.NormalizedURL, item.Title, item.Snippet, item.PublishDate,
		item.CoverageType, item.Territory, item.Sentiment,
		item.RelevanceScore, item.RelevanceReasoning, item.ApprovalStatus,
		item.SourceType, item.SourceMetadataJSON, item.OutletID, item.GameID, item.ClientID,
		item.DuplicateGroupID, item.IsOriginal, item.SyndicationCount, item.DiscoveredAt)
	if err != nil {
		return false, fmt.Errorf("insert item %s: %w", item.NormalizedURL, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert item %s: rows affected: %w", item.NormalizedURL, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) GetItem(ctx context.Context, id string) (*CoverageItem, error) {
	var item CoverageItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM coverage_items WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return &item, nil
}

func (s *SQLiteStore) ListItems(ctx context.Context, opts ItemListOpts) ([]CoverageItem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}

	b := sq.Select("*").From("coverage_items").
		OrderBy("discovered_at DESC").
		Limit(uint64(limit))

	if opts.Status != "" {
		b = b.Where(sq.Eq{"approval_status": opts.Status})
	}
	if opts.ClientID > 0 {
		b = b.Where(sq.Eq{"client_id": opts.ClientID})
	}
	if opts.GameID > 0 {
		b = b.Where(sq.Eq{"game_id": opts.GameID})
	}
	if !opts.Since.IsZero() {
		b = b.Where(sq.GtOrEq{"discovered_at": opts.Since})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build item query: %w", err)
	}

	var items []CoverageItem
	if err := s.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// RecentNormalizedURLs seeds the dedup working set from the most recent
// items.
func (s *SQLiteStore) RecentNormalizedURLs(ctx context.Context, limit int) (map[string]struct{}, error) {
	if limit <= 0 {
		limit = 10000
	}

	var urls []string
	err := s.db.SelectContext(ctx, &urls,
		"SELECT normalized_url FROM coverage_items ORDER BY discovered_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent normalized urls: %w", err)
	}

	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set, nil
}

// UpdateItemStatuses applies one bulk status transition. Rows whose current
// status is not in allowedFrom are left untouched; no other field changes.
func (s *SQLiteStore) UpdateItemStatuses(ctx context.Context, ids []string, allowedFrom []coverage.ApprovalStatus, to coverage.ApprovalStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	b := sq.Update("coverage_items").
		Set("approval_status", to).
		Where(sq.Eq{"id": ids})
	if len(allowedFrom) > 0 {
		b = b.Where(sq.Eq{"approval_status": allowedFrom})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build status update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("update item statuses: %w", err)
	}
	return res.RowsAffected()
}

// ListClusterCandidates loads recent non-rejected items for syndication
// clustering.
func (s *SQLiteStore) ListClusterCandidates(ctx context.Context, since time.Time) ([]CoverageItem, error) {
	var items []CoverageItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM coverage_items
		WHERE discovered_at >= ? AND approval_status != ?
		ORDER BY discovered_at
	`, since, coverage.StatusRejected)
	if err != nil {
		return nil, fmt.Errorf("list cluster candidates: %w", err)
	}
	return items, nil
}

// ApplySyndicationGroup stamps one group onto its members: every member gets
// the group id and syndication count, and exactly the earliest-published
// member keeps is_original.
func (s *SQLiteStore) ApplySyndicationGroup(ctx context.Context, group coverage.SyndicationGroup) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin syndication tx: %w", err)
	}
	defer tx.Rollback()

	query, args, err := sqlx.In(`
		UPDATE coverage_items
		SET duplicate_group_id = ?, syndication_count = ?, is_original = (id = ?)
		WHERE id IN (?)
	`, group.GroupID, group.SyndicationCount, group.OriginalID, group.MemberIDs)
	if err != nil {
		return fmt.Errorf("build syndication update: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return fmt.Errorf("apply syndication group %s: %w", group.GroupID, err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetOutlet(ctx context.Context, id int64) (*Outlet, error) {
	var o Outlet
	err := s.db.GetContext(ctx, &o, "SELECT * FROM outlets WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outlet %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get outlet %d: %w", id, err)
	}
	return &o, nil
}

func (s *SQLiteStore) GetOutletByDomain(ctx context.Context, domain string) (*Outlet, error) {
	var o Outlet
	err := s.db.GetContext(ctx, &o, "SELECT * FROM outlets WHERE domain = ?", domain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("outlet %s: %w", domain, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get outlet %s: %w", domain, err)
	}
	return &o, nil
}

func (s *SQLiteStore) UpsertOutlet(ctx context.Context, o *Outlet) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO outlets (domain, name, monthly_unique_visitors, tier, country, metacritic_status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			name = excluded.name,
			country = excluded.country,
			metacritic_status = excluded.metacritic_status
	`, o.Domain, o.Name, o.MonthlyUniqueVisitors, o.Tier, o.Country, o.MetacriticStatus)
	if err != nil {
		return fmt.Errorf("upsert outlet %s: %w", o.Domain, err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		o.ID = id
	}
	return nil
}

// UpdateOutletTraffic persists a traffic refresh result: visitors, the tier
// derived from them, and the check timestamp move together.
func (s *SQLiteStore) UpdateOutletTraffic(ctx context.Context, id int64, visitors int, tier string, checkedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE outlets
		SET monthly_unique_visitors = ?, tier = ?, traffic_checked_at = ?
		WHERE id = ?
	`, visitors, tier, checkedAt, id)
	if err != nil {
		return fmt.Errorf("update outlet %d traffic: %w", id, err)
	}
	return nil
}

// ListBlacklist returns blacklist terms across all clients; the blacklist is
// a global negative filter during multi-tenant scans.
func (s *SQLiteStore) ListBlacklist(ctx context.Context) ([]string, error) {
	var terms []string
	err := s.db.SelectContext(ctx, &terms,
		"SELECT keyword FROM coverage_keywords WHERE keyword_type = 'blacklist'")
	if err != nil {
		return nil, fmt.Errorf("list blacklist: %w", err)
	}
	return terms, nil
}

// ListWhitelist returns the whitelist terms scoped to a client and,
// optionally, a specific game. Client-wide entries (null game) always apply.
// Whitelist terms never cross clients, so an unknown client has no whitelist.
func (s *SQLiteStore) ListWhitelist(ctx context.Context, clientID, gameID int64) ([]string, error) {
	if clientID <= 0 {
		return nil, nil
	}
	b := sq.Select("keyword").From("coverage_keywords").
		Where(sq.Eq{"keyword_type": "whitelist"}).
		Where(sq.Eq{"client_id": clientID})
	if gameID > 0 {
		b = b.Where(sq.Or{sq.Eq{"game_id": nil}, sq.Eq{"game_id": gameID}})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build whitelist query: %w", err)
	}

	var terms []string
	if err := s.db.SelectContext(ctx, &terms, query, args...); err != nil {
		return nil, fmt.Errorf("list whitelist: %w", err)
	}
	return terms, nil
}

func (s *SQLiteStore) AddKeyword(ctx context.Context, kw *Keyword) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO coverage_keywords (client_id, game_id, keyword, keyword_type)
		VALUES (?, ?, ?, ?)
	`, kw.ClientID, kw.GameID, kw.Keyword, kw.Type)
	if err != nil {
		return fmt.Errorf("add keyword %q: %w", kw.Keyword, err)
	}
	kw.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) CreateClient(ctx context.Context, c *Client) error {
	res, err := s.db.ExecContext(ctx, "INSERT INTO clients (name) VALUES (?)", c.Name)
	if err != nil {
		return fmt.Errorf("create client %q: %w", c.Name, err)
	}
	c.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) CreateGame(ctx context.Context, g *Game) error {
	res, err := s.db.ExecContext(ctx, "INSERT INTO games (client_id, name) VALUES (?, ?)", g.ClientID, g.Name)
	if err != nil {
		return fmt.Errorf("create game %q: %w", g.Name, err)
	}
	g.ID, _ = res.LastInsertId()
	return nil
}

func (s *SQLiteStore) GetGame(ctx context.Context, id int64) (*Game, error) {
	var g Game
	err := s.db.GetContext(ctx, &g, "SELECT * FROM games WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("game %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get game %d: %w", id, err)
	}
	return &g, nil
}

func (s *SQLiteStore) SetCredential(ctx context.Context, service, apiKey string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (service, api_key) VALUES (?, ?)
		ON CONFLICT(service) DO UPDATE SET api_key = excluded.api_key
	`, service, apiKey)
	if err != nil {
		return fmt.Errorf("set credential %s: %w", service, err)
	}
	return nil
}

// Credentials loads the full credential snapshot for one run.
func (s *SQLiteStore) Credentials(ctx context.Context) (source.Credentials, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT service, api_key FROM credentials")
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	creds := make(source.Credentials)
	for rows.Next() {
		var service, key string
		if err := rows.Scan(&service, &key); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		creds[service] = key
	}
	return creds, rows.Err()
}
