package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"cycle-tracker/internal/cycle"
)

func TestLogArchive(t *testing.T) {
	tempDir := t.TempDir()

	archive, err := NewLogArchive(tempDir)
	if err != nil {
		t.Fatalf("Failed to create LogArchive: %v", err)
	}

	userID := "alice"
	first := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)
	logs := []cycle.DailyLog{
		{Date: civil.Date{Year: 2025, Month: 2, Day: 26}, Flow: cycle.FlowHeavy, Symptoms: []string{"cramps"}},
		{Date: civil.Date{Year: 2025, Month: 2, Day: 27}, Flow: cycle.FlowMedium},
	}

	t.Run("CheckExists-False", func(t *testing.T) {
		if archive.Exists(userID, first) {
			t.Errorf("Expected snapshot for '%s' to not exist, but it does", userID)
		}
	})

	t.Run("Latest-Empty", func(t *testing.T) {
		_, err := archive.Latest(userID)
		if !errors.Is(err, ErrNoSnapshot) {
			t.Fatalf("Expected ErrNoSnapshot, got %v", err)
		}
	})

	t.Run("Save", func(t *testing.T) {
		if _, err := archive.Save(userID, first, logs[:1]); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}

		filePath := filepath.Join(tempDir, "alice_20250301T080000Z.json")
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			t.Errorf("Expected file '%s' to be created, but it wasn't", filePath)
		}
		if !archive.Exists(userID, first) {
			t.Errorf("Expected snapshot for '%s' to exist, but it doesn't", userID)
		}
	})

	t.Run("Load", func(t *testing.T) {
		snap, err := archive.Load(userID, first)
		if err != nil {
			t.Fatalf("Failed to load snapshot: %v", err)
		}
		if len(snap.Logs) != 1 {
			t.Fatalf("Expected 1 log, got %d", len(snap.Logs))
		}
		if snap.Logs[0].Flow != cycle.FlowHeavy {
			t.Errorf("Expected flow heavy, got %q", snap.Logs[0].Flow)
		}
		if !snap.TakenAt.Equal(first) {
			t.Errorf("Expected taken_at %v, got %v", first, snap.TakenAt)
		}
	})

	t.Run("Latest", func(t *testing.T) {
		if _, err := archive.Save(userID, second, logs); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}
		// A user whose id shares the prefix must not be picked up.
		if _, err := archive.Save("alice_b", second.Add(time.Hour), nil); err != nil {
			t.Fatalf("Failed to save snapshot: %v", err)
		}

		snap, err := archive.Latest(userID)
		if err != nil {
			t.Fatalf("Failed to load latest snapshot: %v", err)
		}
		if len(snap.Logs) != 2 {
			t.Errorf("Expected 2 logs in latest snapshot, got %d", len(snap.Logs))
		}
	})

	t.Run("RemoveStaleVersions", func(t *testing.T) {
		removed, err := archive.RemoveStaleVersions(userID)
		if err != nil {
			t.Fatalf("Failed to remove stale versions: %v", err)
		}
		if removed != 1 {
			t.Errorf("Expected 1 stale version removed, got %d", removed)
		}
		if archive.Exists(userID, first) {
			t.Error("Expected first snapshot to be removed")
		}
		if !archive.Exists(userID, second) {
			t.Error("Expected latest snapshot to be kept")
		}
		if !archive.Exists("alice_b", second.Add(time.Hour)) {
			t.Error("Expected other user's snapshot to be kept")
		}
	})

	t.Run("Load-NotFound", func(t *testing.T) {
		if _, err := archive.Load("bob", first); err == nil {
			t.Fatal("Expected an error for loading non-existent snapshot, got nil")
		}
	})

	t.Run("Invalid user id", func(t *testing.T) {
		if _, err := archive.Save("../escape", first, logs); err == nil {
			t.Fatal("Expected an error for a path-like user id, got nil")
		}
	})
}
