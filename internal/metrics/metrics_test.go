package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cycle-tracker/internal/database"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(database.NewTestDB(t).SQL)

	now := time.Now().UTC()
	runs := []PredictionRun{
		{UserID: "alice", Path: "historical", Intervals: 3, Confidence: 0.65, Timestamp: now},
		{UserID: "bob", Path: "default", Intervals: 0, Confidence: 0.5, Timestamp: now},
		{UserID: "alice", Path: "historical", Intervals: 3, Confidence: 0.65, Timestamp: now.AddDate(0, 0, -40)},
	}
	for _, r := range runs {
		require.NoError(t, store.Record(ctx, r))
	}

	activity, err := store.GetDailyActivity(ctx, 7)
	require.NoError(t, err)
	require.Len(t, activity, 1)
	assert.Equal(t, now.Format("2006-01-02"), activity[0].Date)
	assert.Equal(t, 2, activity[0].Predictions)
	assert.Equal(t, 2, activity[0].Users)
	assert.InDelta(t, 0.575, activity[0].AverageConfidence, 1e-9)

	removed, err := store.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	removed, err = store.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestExporter(t *testing.T) {
	e := NewExporter()
	e.ObservePrediction("historical", 0.6, 2*time.Millisecond)
	e.ObservePrediction("default", 0.5, time.Millisecond)
	e.ObservePrediction("historical", 0.65, time.Millisecond)
	e.ObserveLogWrite("upsert", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(e.predictions.WithLabelValues("historical")))
	assert.Equal(t, 3.0, testutil.ToFloat64(e.logsWritten.WithLabelValues("upsert")))

	rec := httptest.NewRecorder()
	e.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cycle_tracker_predictions_total")
	assert.Contains(t, string(body), "cycle_tracker_prediction_confidence_bucket")
}

func TestGetSysHealth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.json"), make([]byte, 2048), 0644))

	health := GetSysHealth(dir, filepath.Join(dir, "missing"))

	require.Len(t, health.Storage, 2)
	assert.Equal(t, int64(2048), health.Storage[0].Bytes)
	assert.Equal(t, "2.0 kB", health.Storage[0].Human())
	assert.Zero(t, health.Storage[1].Bytes)
	assert.Positive(t, health.Goroutines)
}
