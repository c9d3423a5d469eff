// Package storage keeps versioned JSON snapshots of a user's daily logs on
// disk, used for exports and restores.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cycle-tracker/internal/cycle"
)

const timestampLayout = "20060102T150405Z"

// ErrNoSnapshot is returned when a user has no archived snapshot.
var ErrNoSnapshot = errors.New("no archived snapshot")

// Snapshot is the archived form of a user's logs at a point in time.
type Snapshot struct {
	UserID  string           `json:"user_id"`
	TakenAt time.Time        `json:"taken_at"`
	Logs    []cycle.DailyLog `json:"logs"`
}

// LogArchive provides a file-based storage for log snapshots.
type LogArchive struct {
	basePath string
}

// NewLogArchive creates a new LogArchive and ensures the base directory exists.
func NewLogArchive(basePath string) (*LogArchive, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create archive directory %s: %w", basePath, err)
	}
	return &LogArchive{basePath: basePath}, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// getVersionedPath returns the full path for a given user and version.
func (a *LogArchive) getVersionedPath(userID string, takenAt time.Time) string {
	filename := fmt.Sprintf("%s_%s.json", userID, formatTimestamp(takenAt))
	return filepath.Join(a.basePath, filename)
}

func validateUserID(userID string) error {
	if userID == "" || strings.ContainsAny(userID, `/\`) || strings.Contains(userID, "..") {
		return fmt.Errorf("invalid user id %q for archive", userID)
	}
	return nil
}

// Save writes a snapshot of logs and returns it. Versions are second
// resolution; saving twice in the same second overwrites.
func (a *LogArchive) Save(userID string, takenAt time.Time, logs []cycle.DailyLog) (Snapshot, error) {
	if err := validateUserID(userID); err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		UserID:  userID,
		TakenAt: takenAt.UTC().Truncate(time.Second),
		Logs:    logs,
	}
	if snap.Logs == nil {
		snap.Logs = []cycle.DailyLog{}
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	filePath := a.getVersionedPath(userID, takenAt)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return Snapshot{}, fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return snap, nil
}

// Load retrieves the snapshot taken at takenAt.
func (a *LogArchive) Load(userID string, takenAt time.Time) (*Snapshot, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	return readSnapshot(a.getVersionedPath(userID, takenAt))
}

// Exists checks if a specific snapshot version exists.
func (a *LogArchive) Exists(userID string, takenAt time.Time) bool {
	if validateUserID(userID) != nil {
		return false
	}
	_, err := os.Stat(a.getVersionedPath(userID, takenAt))
	return !os.IsNotExist(err)
}

// Latest retrieves the newest snapshot for a user.
func (a *LogArchive) Latest(userID string) (*Snapshot, error) {
	versions, err := a.versions(userID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w for user %s", ErrNoSnapshot, userID)
	}
	return readSnapshot(versions[len(versions)-1])
}

// RemoveStaleVersions removes every snapshot of userID except the newest
// and returns how many files were removed.
func (a *LogArchive) RemoveStaleVersions(userID string) (int, error) {
	versions, err := a.versions(userID)
	if err != nil {
		return 0, err
	}
	if len(versions) <= 1 {
		return 0, nil
	}

	stale := versions[:len(versions)-1]
	for _, match := range stale {
		if err := os.Remove(match); err != nil {
			return 0, fmt.Errorf("failed to remove stale file %s: %w", match, err)
		}
	}
	return len(stale), nil
}

// versions lists the snapshot files of userID, oldest first. The glob also
// matches users sharing the prefix, so the suffix must parse as a timestamp.
func (a *LogArchive) versions(userID string) ([]string, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}

	pattern := filepath.Join(a.basePath, fmt.Sprintf("%s_*.json", userID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to glob snapshot files: %w", err)
	}

	prefix := userID + "_"
	var versions []string
	for _, match := range matches {
		ts := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(match), prefix), ".json")
		if _, err := time.Parse(timestampLayout, ts); err != nil {
			continue
		}
		versions = append(versions, match)
	}
	sort.Strings(versions)
	return versions, nil
}

func readSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}
