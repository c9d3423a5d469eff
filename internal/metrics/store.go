package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PredictionRun records metadata for a single prediction.
type PredictionRun struct {
	UserID     string
	Path       string // "historical" or "default"
	Intervals  int
	Confidence float64
	Latency    time.Duration
	Timestamp  time.Time
}

// Store handles persistence of prediction runs to SQLite.
type Store struct {
	db *sql.DB
}

// NewStore initializes the Store with an existing database connection.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record saves a run to the database.
func (s *Store) Record(ctx context.Context, r PredictionRun) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO prediction_runs (user_id, path, intervals, confidence, latency_us, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.UserID, r.Path, r.Intervals, r.Confidence, r.Latency.Microseconds(), ts.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to record prediction run: %w", err)
	}
	return nil
}

// DailyActivity represents prediction totals for a single day.
type DailyActivity struct {
	Date              string
	Predictions       int
	Users             int
	AverageConfidence float64
}

// GetDailyActivity retrieves activity for the last N days, newest first.
func (s *Store) GetDailyActivity(ctx context.Context, days int) ([]DailyActivity, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Unix()
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(created_at, 'unixepoch') AS day,
		       COUNT(*),
		       COUNT(DISTINCT user_id),
		       AVG(confidence)
		FROM prediction_runs
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	defer rows.Close()

	var results []DailyActivity
	for rows.Next() {
		var (
			a   DailyActivity
			avg sql.NullFloat64
		)
		if err := rows.Scan(&a.Date, &a.Predictions, &a.Users, &avg); err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		if avg.Valid {
			a.AverageConfidence = avg.Float64
		}
		results = append(results, a)
	}
	return results, rows.Err()
}

// Cleanup removes records older than the specified number of days and
// returns how many were removed.
func (s *Store) Cleanup(ctx context.Context, olderThanDays int) (int64, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -olderThanDays).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM prediction_runs WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to clean up prediction runs: %w", err)
	}
	return res.RowsAffected()
}
