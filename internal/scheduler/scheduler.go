// Package scheduler runs periodic housekeeping for the server.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/share"
)

// DefaultInterval is how often maintenance runs.
const DefaultInterval = 24 * time.Hour

// Report summarizes one maintenance run.
type Report struct {
	PredictionRunsRemoved int64
	RevocationsPurged     int64
}

// Maintenance prunes prediction runs past retention and revocations of
// tokens that have expired anyway.
type Maintenance struct {
	runs          *metrics.Store
	shares        *share.Issuer
	retentionDays int
	logger        *zap.Logger
}

// NewMaintenance creates a Maintenance job.
func NewMaintenance(runs *metrics.Store, shares *share.Issuer, retentionDays int, logger *zap.Logger) *Maintenance {
	return &Maintenance{
		runs:          runs,
		shares:        shares,
		retentionDays: retentionDays,
		logger:        logger,
	}
}

// RunMaintenance performs one pass. Both steps run even if the first fails.
func (m *Maintenance) RunMaintenance(ctx context.Context) (Report, error) {
	var (
		report Report
		errs   []error
	)

	removed, err := m.runs.Cleanup(ctx, m.retentionDays)
	if err != nil {
		errs = append(errs, err)
	}
	report.PredictionRunsRemoved = removed

	purged, err := m.shares.PurgeExpired(ctx)
	if err != nil {
		errs = append(errs, err)
	}
	report.RevocationsPurged = purged

	if err := errors.Join(errs...); err != nil {
		return report, fmt.Errorf("maintenance incomplete: %w", err)
	}
	return report, nil
}

// Start runs maintenance every interval until ctx is cancelled. The first
// run happens immediately.
func (m *Maintenance) Start(ctx context.Context, interval time.Duration) error {
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	m.logger.Info("starting maintenance scheduler", zap.Duration("interval", interval))

	_, err := scheduler.Every(interval).Do(func() {
		report, err := m.RunMaintenance(ctx)
		if err != nil {
			m.logger.Error("scheduled maintenance failed", zap.Error(err))
		}
		m.logger.Info("maintenance finished",
			zap.Int64("prediction_runs_removed", report.PredictionRunsRemoved),
			zap.Int64("revocations_purged", report.RevocationsPurged),
		)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}

	scheduler.StartAsync()

	<-ctx.Done()

	scheduler.Stop()
	m.logger.Info("maintenance scheduler stopped")
	return nil
}
