package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/pressworks/covscan/internal/config"
	"github.com/pressworks/covscan/internal/scheduler"
	"github.com/pressworks/covscan/internal/store"
	"github.com/pressworks/covscan/pkg/actor"
	"github.com/pressworks/covscan/pkg/alert"
	"github.com/pressworks/covscan/pkg/coverage"
	"github.com/pressworks/covscan/pkg/outlet"
	"github.com/pressworks/covscan/pkg/scan"
	"github.com/pressworks/covscan/pkg/search"
	"github.com/pressworks/covscan/pkg/server"
	"github.com/pressworks/covscan/pkg/source"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

// app bundles everything the commands share.
type app struct {
	cfg        *config.Config
	store      *store.SQLiteStore
	scanner    *scan.Scanner
	classifier *outlet.Classifier
	logger     *zap.Logger
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := cfg.Logging.BuildLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	searchClient := search.NewClient(cfg.Search.BaseURL)
	actorClient := actor.NewClient(cfg.Actors.BaseURL)
	costPerQuery := cfg.Scan.ParseCostPerQuery()

	connectors := map[string]source.Connector{
		"feed":      source.NewFeed(cfg.Scan.Lookback()),
		"websearch": source.NewWebSearch(searchClient, costPerQuery, logger),
		"actor":     source.NewActor(actorClient, cfg.Actors.Actors, costPerQuery, logger),
	}

	scanner := scan.New(db, connectors, scan.Config{
		Budget:                cfg.Scan.Budget(),
		DedupSeed:             cfg.Scan.DedupSeed,
		ClusterSimilarity:     cfg.Clustering.Similarity,
		ClusterWindow:         cfg.Clustering.Window(),
		ClusterLookback:       cfg.Clustering.Lookback(),
		FailureAlertThreshold: cfg.Alerts.FailureThreshold,
	}, buildAlertManager(cfg), logger)

	classifier := outlet.NewClassifier(searchClient, cfg.Traffic.ProfileBaseURL, logger)

	return &app{
		cfg:        cfg,
		store:      db,
		scanner:    scanner,
		classifier: classifier,
		logger:     logger,
	}, nil
}

func (a *app) close() {
	_ = a.store.Close()
	_ = a.logger.Sync()
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func runScan(sourceID int64, all bool, freq string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	report, err := a.scanner.Run(context.Background(), scan.Options{
		SourceID:  sourceID,
		All:       all,
		Frequency: freq,
	})
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tSTATUS\tQUERIES\tFOUND\tINSERTED\tCOST\tERROR")
	for _, res := range report.Results {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			res.Source, res.Status, res.Queries, res.Found, res.Inserted,
			res.CostEstimate.String(), res.Error)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d found, %d inserted, cost %s, %dms\n",
		report.TotalFound(), report.TotalInserted(),
		report.TotalCost().String(), report.DurationMS)
	return nil
}

func runCluster() error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.scanner.ClusterRecent(context.Background()); err != nil {
		return fmt.Errorf("cluster: %w", err)
	}
	fmt.Println("clustering complete")
	return nil
}

func runTraffic(domain string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()
	creds, err := a.store.Credentials(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	report := a.classifier.Refresh(ctx, domain, creds)

	if o, err := a.store.GetOutletByDomain(ctx, domain); err == nil && report.MonthlyUniqueVisitors > 0 {
		if err := a.store.UpdateOutletTraffic(ctx, o.ID,
			report.MonthlyUniqueVisitors, report.SuggestedTier, report.CheckedAt); err != nil {
			return fmt.Errorf("persist traffic: %w", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func runItems(status string, limit int, jsonOutput bool) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	opts := store.ItemListOpts{Limit: limit}
	if status != "" {
		st := coverage.ApprovalStatus(status)
		if !st.Valid() {
			return fmt.Errorf("unknown status %q", status)
		}
		opts.Status = st
	}

	items, err := a.store.ListItems(context.Background(), opts)
	if err != nil {
		return fmt.Errorf("list items: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}

	if len(items) == 0 {
		fmt.Println("no items found (try scanning first: covscan scan --all)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tSTATUS\tTITLE\tURL")
	for _, item := range items {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			item.RelevanceScore, item.ApprovalStatus, item.Title, item.NormalizedURL)
	}
	return w.Flush()
}

func runSources() error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	sources, err := a.store.ListSources(context.Background(), store.SourceListOpts{})
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTYPE\tFREQ\tACTIVE\tLAST STATUS\tFAILURES\tLAST RUN")
	for _, src := range sources {
		lastRun := ""
		if src.LastRunAt != nil {
			lastRun = src.LastRunAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%s\t%d\t%s\n",
			src.ID, src.Name, src.Type, src.ScanFrequency, src.IsActive,
			src.LastRunStatus, src.ConsecutiveFailures, lastRun)
	}
	return w.Flush()
}

func runCredential(service, apiKey string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.SetCredential(context.Background(), service, apiKey); err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	fmt.Printf("credential stored for %s\n", service)
	return nil
}

func runServe(port int) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	srv := server.New(a.store, a.scanner, a.classifier, port, a.logger)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(a.scanner, a.cfg.Clustering.Interval(), a.logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := server.New(a.store, a.scanner, a.classifier, port, a.logger)
	return srv.Run(ctx)
}
