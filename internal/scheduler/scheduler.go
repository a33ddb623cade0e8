// Package scheduler drives periodic scans per frequency bucket and the
// recurring syndication clustering pass.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/pressworks/covscan/internal/store"
	"github.com/pressworks/covscan/pkg/scan"
)

// bucketSpecs maps each scan frequency bucket to its cron spec.
var bucketSpecs = map[string]string{
	store.FreqHourly:  "@hourly",
	store.Freq6Hourly: "@every 6h",
	store.FreqDaily:   "@daily",
	store.FreqWeekly:  "@weekly",
}

// Scheduler runs scans and clustering on a cron schedule.
type Scheduler struct {
	scanner         *scan.Scanner
	cron            *cron.Cron
	clusterInterval time.Duration
	logger          *zap.Logger
}

// New creates a scheduler around the given scanner.
func New(scanner *scan.Scanner, clusterInterval time.Duration, logger *zap.Logger) *Scheduler {
	if clusterInterval <= 0 {
		clusterInterval = 30 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		scanner:         scanner,
		cron:            cron.New(),
		clusterInterval: clusterInterval,
		logger:          logger,
	}
}

// Start registers all jobs and starts the cron loop. Jobs inherit ctx so
// shutdown cancels in-flight scans.
func (s *Scheduler) Start(ctx context.Context) error {
	for bucket, spec := range bucketSpecs {
		bucket := bucket
		if _, err := s.cron.AddFunc(spec, func() { s.runBucket(ctx, bucket) }); err != nil {
			return fmt.Errorf("register %s schedule: %w", bucket, err)
		}
	}

	clusterSpec := fmt.Sprintf("@every %s", s.clusterInterval)
	if _, err := s.cron.AddFunc(clusterSpec, func() { s.runClustering(ctx) }); err != nil {
		return fmt.Errorf("register clustering schedule: %w", err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.Int("buckets", len(bucketSpecs)),
		zap.Duration("cluster_interval", s.clusterInterval))
	return nil
}

// Stop stops the cron loop and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runBucket(ctx context.Context, bucket string) {
	report, err := s.scanner.Run(ctx, scan.Options{Frequency: bucket})
	if err != nil {
		s.logger.Error("scheduled scan failed", zap.String("bucket", bucket), zap.Error(err))
		return
	}
	s.logger.Info("scheduled scan complete",
		zap.String("bucket", bucket),
		zap.Int("sources", len(report.Results)),
		zap.Int("found", report.TotalFound()),
		zap.Int("inserted", report.TotalInserted()),
		zap.Int64("duration_ms", report.DurationMS))
}

func (s *Scheduler) runClustering(ctx context.Context) {
	if err := s.scanner.ClusterRecent(ctx); err != nil {
		s.logger.Error("scheduled clustering failed", zap.Error(err))
	}
}
