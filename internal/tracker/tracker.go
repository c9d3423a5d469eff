// Package tracker is the application service: it records daily logs and
// recomputes predictions from the full stored history on every request.
package tracker

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"cycle-tracker/internal/cycle"
	"cycle-tracker/internal/dailylog"
	"cycle-tracker/internal/metrics"
)

// Prediction paths reported in metrics.
const (
	PathHistorical = "historical"
	PathDefault    = "default"
)

// Result is a prediction together with the history it was derived from.
type Result struct {
	Prediction cycle.CyclePrediction `json:"prediction"`
	Analysis   cycle.Analysis        `json:"analysis"`
	LogCount   int                   `json:"log_count"`
	Today      civil.Date            `json:"today"`
}

// CurrentPhase reports the predicted phase for Today, if it falls inside the
// predicted window.
func (r Result) CurrentPhase() (cycle.Phase, bool) {
	return cycle.PhaseOn(r.Prediction, r.Today)
}

// Service coordinates log storage, prediction and bookkeeping.
type Service struct {
	logs     *dailylog.Repository
	runs     *metrics.Store
	exporter *metrics.Exporter
	logger   *zap.Logger
	location *time.Location
	now      func() time.Time
}

// NewService creates a new Service. runs and exporter may be nil.
func NewService(
	logs *dailylog.Repository,
	runs *metrics.Store,
	exporter *metrics.Exporter,
	logger *zap.Logger,
	location *time.Location,
) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		logs:     logs,
		runs:     runs,
		exporter: exporter,
		logger:   logger,
		location: location,
		now:      time.Now,
	}
}

// WithClock replaces the clock used to determine today.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Today returns the current calendar date in the configured location.
func (s *Service) Today() civil.Date {
	return cycle.Today(s.now(), s.location)
}

// RecordDay stores or replaces the log for its date.
func (s *Service) RecordDay(ctx context.Context, userID string, log cycle.DailyLog) error {
	if err := ValidateUser(userID); err != nil {
		return err
	}
	if log.Date.After(s.Today()) {
		return fmt.Errorf("%w: %s is in the future", ErrInvalidLog, log.Date)
	}
	if err := s.logs.Upsert(ctx, userID, log); err != nil {
		return err
	}
	s.observeWrite("upsert", 1)
	s.logger.Debug("daily log recorded",
		zap.String("user_id", userID),
		zap.Stringer("date", log.Date),
		zap.String("flow", string(log.Flow)),
	)
	return nil
}

// ImportLogs stores a batch of logs in one transaction. The batch is
// rejected if any log is dated after today.
func (s *Service) ImportLogs(ctx context.Context, userID string, logs []cycle.DailyLog) error {
	if err := ValidateUser(userID); err != nil {
		return err
	}
	today := s.Today()
	for _, log := range logs {
		if log.Date.After(today) {
			return fmt.Errorf("%w: %s is in the future", ErrInvalidLog, log.Date)
		}
	}
	if err := s.logs.UpsertMany(ctx, userID, logs); err != nil {
		return err
	}
	s.observeWrite("upsert", len(logs))
	s.logger.Info("daily logs imported", zap.String("user_id", userID), zap.Int("count", len(logs)))
	return nil
}

// RemoveDay deletes the log for a date. dailylog.ErrNotFound is returned
// when nothing was logged that day.
func (s *Service) RemoveDay(ctx context.Context, userID string, day civil.Date) error {
	if err := ValidateUser(userID); err != nil {
		return err
	}
	if err := s.logs.Delete(ctx, userID, day); err != nil {
		return err
	}
	s.observeWrite("delete", 1)
	return nil
}

// Day returns the stored log for a single date, or dailylog.ErrNotFound.
func (s *Service) Day(ctx context.Context, userID string, day civil.Date) (cycle.DailyLog, error) {
	if err := ValidateUser(userID); err != nil {
		return cycle.DailyLog{}, err
	}
	log, err := s.logs.Get(ctx, userID, day)
	if err != nil {
		return cycle.DailyLog{}, err
	}
	return *log, nil
}

// Logs returns every stored log for the user, oldest first.
func (s *Service) Logs(ctx context.Context, userID string) ([]cycle.DailyLog, error) {
	if err := ValidateUser(userID); err != nil {
		return nil, err
	}
	return s.logs.List(ctx, userID)
}

// LogsBetween returns the user's logs from from to to inclusive.
func (s *Service) LogsBetween(ctx context.Context, userID string, from, to civil.Date) ([]cycle.DailyLog, error) {
	if err := ValidateUser(userID); err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range ends before it starts", ErrInvalidLog)
	}
	return s.logs.ListRange(ctx, userID, from, to)
}

// Predict loads the user's full history and recomputes the prediction.
func (s *Service) Predict(ctx context.Context, userID string) (Result, error) {
	if err := ValidateUser(userID); err != nil {
		return Result{}, err
	}

	start := time.Now()
	logs, err := s.logs.List(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load logs for prediction: %w", err)
	}

	result := s.PredictSnapshot(logs)
	elapsed := time.Since(start)

	path := PathDefault
	if result.Analysis.HasHistory() {
		path = PathHistorical
	}
	s.observePrediction(ctx, userID, path, result, elapsed)

	return result, nil
}

// PredictSnapshot predicts from logs the caller already holds. Nothing is
// read or written.
func (s *Service) PredictSnapshot(logs []cycle.DailyLog) Result {
	today := s.Today()
	return Result{
		Prediction: cycle.Predict(logs, today),
		Analysis:   cycle.Analyze(logs),
		LogCount:   len(logs),
		Today:      today,
	}
}

func (s *Service) observePrediction(ctx context.Context, userID, path string, r Result, elapsed time.Duration) {
	if s.exporter != nil {
		s.exporter.ObservePrediction(path, r.Prediction.Confidence, elapsed)
	}
	if s.runs != nil {
		err := s.runs.Record(ctx, metrics.PredictionRun{
			UserID:     userID,
			Path:       path,
			Intervals:  r.Analysis.Intervals(),
			Confidence: r.Prediction.Confidence,
			Latency:    elapsed,
		})
		if err != nil {
			s.logger.Warn("failed to record prediction run", zap.String("user_id", userID), zap.Error(err))
		}
	}
	s.logger.Debug("prediction computed",
		zap.String("user_id", userID),
		zap.String("path", path),
		zap.Int("intervals", r.Analysis.Intervals()),
		zap.Float64("confidence", r.Prediction.Confidence),
		zap.Duration("elapsed", elapsed),
	)
}

func (s *Service) observeWrite(op string, n int) {
	if s.exporter != nil {
		s.exporter.ObserveLogWrite(op, n)
	}
}
