// Package dailylog persists the per-day tracking entries users record.
package dailylog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"cycle-tracker/internal/cycle"
)

// ErrNotFound is returned when no log exists for the requested day.
var ErrNotFound = errors.New("daily log not found")

// Repository is a database-backed repository for daily logs.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository.
func NewRepository(d *sql.DB) *Repository {
	return &Repository{db: d}
}

const upsertLog = `
INSERT INTO daily_logs (user_id, log_date, flow, symptoms, moods, notes, temperature, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, log_date) DO UPDATE SET
    flow        = excluded.flow,
    symptoms    = excluded.symptoms,
    moods       = excluded.moods,
    notes       = excluded.notes,
    temperature = excluded.temperature,
    updated_at  = excluded.updated_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Upsert inserts the log or replaces the existing entry for the same day.
func (r *Repository) Upsert(ctx context.Context, userID string, log cycle.DailyLog) error {
	return upsert(ctx, r.db, userID, log)
}

// UpsertMany writes all logs in a single transaction.
func (r *Repository) UpsertMany(ctx context.Context, userID string, logs []cycle.DailyLog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, log := range logs {
		if err := upsert(ctx, tx, userID, log); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit daily logs: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, db execer, userID string, log cycle.DailyLog) error {
	if !log.Date.IsValid() {
		return fmt.Errorf("invalid log date %v", log.Date)
	}

	symptoms, err := marshalList(log.Symptoms)
	if err != nil {
		return fmt.Errorf("failed to marshal symptoms: %w", err)
	}
	moods, err := marshalList(log.Moods)
	if err != nil {
		return fmt.Errorf("failed to marshal moods: %w", err)
	}

	var temperature sql.NullFloat64
	if log.Temperature != nil {
		temperature = sql.NullFloat64{Float64: *log.Temperature, Valid: true}
	}

	_, err = db.ExecContext(ctx, upsertLog,
		userID,
		log.Date.String(),
		string(log.Flow),
		symptoms,
		moods,
		log.Notes,
		temperature,
		time.Now().UTC().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily log for user %s on %s: %w", userID, log.Date, err)
	}
	return nil
}

// Delete removes the log for a single day.
func (r *Repository) Delete(ctx context.Context, userID string, day civil.Date) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM daily_logs WHERE user_id = ? AND log_date = ?`,
		userID, day.String())
	if err != nil {
		return fmt.Errorf("failed to delete daily log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get retrieves the log for a single day.
func (r *Repository) Get(ctx context.Context, userID string, day civil.Date) (*cycle.DailyLog, error) {
	row := r.db.QueryRowContext(ctx, selectLogs+` WHERE user_id = ? AND log_date = ?`, userID, day.String())
	log, err := scanLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get daily log: %w", err)
	}
	return &log, nil
}

// List retrieves every log for a user, oldest first.
func (r *Repository) List(ctx context.Context, userID string) ([]cycle.DailyLog, error) {
	rows, err := r.db.QueryContext(ctx, selectLogs+` WHERE user_id = ? ORDER BY log_date`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list daily logs for user %s: %w", userID, err)
	}
	return collect(rows)
}

// ListRange retrieves logs between from and to inclusive, oldest first.
func (r *Repository) ListRange(ctx context.Context, userID string, from, to civil.Date) ([]cycle.DailyLog, error) {
	rows, err := r.db.QueryContext(ctx,
		selectLogs+` WHERE user_id = ? AND log_date BETWEEN ? AND ? ORDER BY log_date`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list daily logs for user %s: %w", userID, err)
	}
	return collect(rows)
}

// Count returns the number of logs stored for a user.
func (r *Repository) Count(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_logs WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count daily logs: %w", err)
	}
	return count, nil
}

const selectLogs = `SELECT log_date, flow, symptoms, moods, notes, temperature FROM daily_logs`

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(s scanner) (cycle.DailyLog, error) {
	var (
		day, flow, symptoms, moods, notes string
		temperature                       sql.NullFloat64
	)
	if err := s.Scan(&day, &flow, &symptoms, &moods, &notes, &temperature); err != nil {
		return cycle.DailyLog{}, err
	}

	date, err := civil.ParseDate(day)
	if err != nil {
		return cycle.DailyLog{}, fmt.Errorf("corrupt log date %q: %w", day, err)
	}

	log := cycle.DailyLog{
		Date:  date,
		Flow:  cycle.FlowIntensity(flow),
		Notes: notes,
	}
	if log.Symptoms, err = unmarshalList(symptoms); err != nil {
		return cycle.DailyLog{}, fmt.Errorf("corrupt symptoms for %s: %w", day, err)
	}
	if log.Moods, err = unmarshalList(moods); err != nil {
		return cycle.DailyLog{}, fmt.Errorf("corrupt moods for %s: %w", day, err)
	}
	if temperature.Valid {
		t := temperature.Float64
		log.Temperature = &t
	}
	return log, nil
}

func collect(rows *sql.Rows) ([]cycle.DailyLog, error) {
	defer rows.Close()

	var logs []cycle.DailyLog
	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily logs: %w", err)
	}
	return logs, nil
}

func marshalList(items []string) (string, error) {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	return string(b), err
}

// unmarshalList returns nil for an empty list so stored logs round-trip.
func unmarshalList(raw string) ([]string, error) {
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items, nil
}
