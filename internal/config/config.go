package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Server     ServerConfig     `yaml:"server"`
	Scan       ScanConfig       `yaml:"scan"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Search     SearchConfig     `yaml:"search"`
	Actors     ActorsConfig     `yaml:"actors"`
	Traffic    TrafficConfig    `yaml:"traffic"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// ScanConfig tunes scan invocations.
type ScanConfig struct {
	BudgetSeconds int    `yaml:"budget_seconds"`
	DedupSeed     int    `yaml:"dedup_seed"`
	LookbackDays  int    `yaml:"lookback_days"`
	CostPerQuery  string `yaml:"cost_per_query"`
}

// Budget returns the scan wall-clock budget.
func (s ScanConfig) Budget() time.Duration {
	if s.BudgetSeconds <= 0 {
		return 50 * time.Second
	}
	return time.Duration(s.BudgetSeconds) * time.Second
}

// Lookback returns how far back feed entries are accepted.
func (s ScanConfig) Lookback() time.Duration {
	if s.LookbackDays <= 0 {
		return 30 * 24 * time.Hour
	}
	return time.Duration(s.LookbackDays) * 24 * time.Hour
}

// ParseCostPerQuery returns the per-query cost estimate.
func (s ScanConfig) ParseCostPerQuery() decimal.Decimal {
	d, err := decimal.NewFromString(s.CostPerQuery)
	if err != nil {
		return decimal.NewFromFloat(0.001)
	}
	return d
}

// ClusteringConfig tunes syndication clustering. The similarity threshold is
// deliberately configurable: it should be validated against representative
// near-duplicate and genuinely-distinct title pairs.
type ClusteringConfig struct {
	Similarity      float64 `yaml:"similarity"`
	WindowHours     int     `yaml:"window_hours"`
	LookbackDays    int     `yaml:"lookback_days"`
	IntervalMinutes int     `yaml:"interval_minutes"`
}

// Window returns the max publish-date distance within a group.
func (c ClusteringConfig) Window() time.Duration {
	if c.WindowHours <= 0 {
		return 72 * time.Hour
	}
	return time.Duration(c.WindowHours) * time.Hour
}

// Lookback returns how far back items are clustered.
func (c ClusteringConfig) Lookback() time.Duration {
	if c.LookbackDays <= 0 {
		return 14 * 24 * time.Hour
	}
	return time.Duration(c.LookbackDays) * 24 * time.Hour
}

// Interval returns how often the daemon reruns clustering.
func (c ClusteringConfig) Interval() time.Duration {
	if c.IntervalMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// SearchConfig configures the web-search API client.
type SearchConfig struct {
	BaseURL string `yaml:"base_url"`
}

// ActorsConfig configures the scraper-actor platform client.
type ActorsConfig struct {
	BaseURL string            `yaml:"base_url"`
	Actors  map[string]string `yaml:"actors"` // platform -> actor id override
}

// TrafficConfig configures the traffic-estimation fallback chain.
type TrafficConfig struct {
	ProfileBaseURL string `yaml:"profile_base_url"`
}

// AlertsConfig configures source-health alerting.
type AlertsConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Slack            SlackConfig   `yaml:"slack"`
	Discord          DiscordConfig `yaml:"discord"`
	Webhook          WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// BuildLogger constructs the process logger.
func (l LoggingConfig) BuildLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	if l.Level != "" {
		level, err := zap.ParseAtomicLevel(l.Level)
		if err != nil {
			return nil, fmt.Errorf("parse log level %q: %w", l.Level, err)
		}
		cfg.Level = level
	}
	return cfg.Build()
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./covscan.db"},
		Server:   ServerConfig{Port: 8080},
		Scan: ScanConfig{
			BudgetSeconds: 50,
			DedupSeed:     10000,
			LookbackDays:  30,
			CostPerQuery:  "0.001",
		},
		Clustering: ClusteringConfig{
			Similarity:      0.6,
			WindowHours:     72,
			LookbackDays:    14,
			IntervalMinutes: 30,
		},
		Alerts: AlertsConfig{FailureThreshold: 3},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COVSCAN_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("COVSCAN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
}
