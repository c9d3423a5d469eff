package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"cycle-tracker/internal/database"
	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/share"
)

func TestRunMaintenance(t *testing.T) {
	ctx := context.Background()
	db := database.NewTestDB(t)
	runs := metrics.NewStore(db.SQL)
	shares := share.NewIssuer("secret", time.Hour, db.SQL)

	now := time.Now().UTC()
	require.NoError(t, runs.Record(ctx, metrics.PredictionRun{UserID: "alice", Path: "default", Confidence: 0.5, Timestamp: now}))
	require.NoError(t, runs.Record(ctx, metrics.PredictionRun{UserID: "alice", Path: "default", Confidence: 0.5, Timestamp: now.AddDate(0, 0, -45)}))

	require.NoError(t, shares.Revoke(ctx, share.Claims{UserID: "alice", ID: "expired", ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, shares.Revoke(ctx, share.Claims{UserID: "alice", ID: "live", ExpiresAt: now.Add(time.Hour)}))

	m := NewMaintenance(runs, shares, 30, zap.NewNop())
	report, err := m.RunMaintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.PredictionRunsRemoved)
	assert.Equal(t, int64(1), report.RevocationsPurged)

	report, err = m.RunMaintenance(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
}

func TestStart(t *testing.T) {
	db := database.NewTestDB(t)
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewMaintenance(metrics.NewStore(db.SQL), share.NewIssuer("secret", time.Hour, db.SQL), 30, zap.New(core))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx, time.Hour) }()

	assert.Eventually(t, func() bool {
		return logs.FilterMessage("maintenance finished").Len() == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, 1, logs.FilterMessage("maintenance scheduler stopped").Len())
}
