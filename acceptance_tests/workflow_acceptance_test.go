package acceptance_tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"cycle-tracker/internal/api"
	"cycle-tracker/internal/dailylog"
	"cycle-tracker/internal/database"
	"cycle-tracker/internal/insight"
	"cycle-tracker/internal/llm"
	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/share"
	"cycle-tracker/internal/storage"
	"cycle-tracker/internal/tracker"
)

// --- Mock LLM Client ---
type mockLLMClient struct {
	generateContentCalls int
}

func (m *mockLLMClient) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.generateContentCalls++
	return llm.ContentResponse{
		Content: "Your cycle looks regular. Expect your next period in late March.",
		Usage:   llm.TokenUsage{Model: "mock", TotalTokens: 10},
	}, nil
}

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type stack struct {
	db      *database.DB
	tracker *tracker.Service
	server  *httptest.Server
}

func newStack(t *testing.T, dbPath string, textGen llm.TextGenerator) *stack {
	t.Helper()
	db, err := database.NewDB(dbPath, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	exporter := metrics.NewExporter()
	svc := tracker.NewService(dailylog.NewRepository(db.SQL), metrics.NewStore(db.SQL), exporter, zap.NewNop(), time.UTC).
		WithClock(func() time.Time { return fixedNow })
	shares := share.NewIssuer("acceptance-secret", time.Hour, db.SQL)

	srv, err := api.NewServer(svc, shares, insight.NewNarrator(textGen, zap.NewNop()), exporter, zap.NewNop(), &api.Config{Port: "0"})
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &stack{db: db, tracker: svc, server: ts}
}

func (s *stack) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *stack) prediction(t *testing.T, path string) api.PredictionResponse {
	t.Helper()
	resp := s.do(t, http.MethodGet, path, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s returned %d", path, resp.StatusCode)
	}
	var out api.PredictionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Failed to decode prediction: %v", err)
	}
	return out
}

// --- Acceptance Test ---
func TestFullWorkflow(t *testing.T) {
	tempDir := t.TempDir()
	llmClient := &mockLLMClient{}
	app := newStack(t, filepath.Join(tempDir, "cycle.db"), llmClient)

	// --- Step 1: Logging three periods over HTTP ---
	t.Log("--- Step 1: Logging periods ---")
	for _, start := range []string{"2025-01-03", "2025-01-31", "2025-02-28"} {
		first, _ := time.Parse("2006-01-02", start)
		for i := 0; i < 4; i++ {
			day := first.AddDate(0, 0, i).Format("2006-01-02")
			resp := app.do(t, http.MethodPut, "/api/v1/users/alice/logs/"+day, `{"flow":"medium"}`)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("Logging %s returned %d", day, resp.StatusCode)
			}
		}
	}

	// --- Step 2: Prediction with narrative ---
	t.Log("--- Step 2: Predicting ---")
	pred := app.prediction(t, "/api/v1/users/alice/prediction?narrate=true")
	if got := pred.Prediction.NextPeriodStart.String(); got != "2025-03-28" {
		t.Errorf("Expected next period on 2025-03-28, got %s", got)
	}
	if pred.Prediction.Confidence != 0.65 {
		t.Errorf("Expected confidence 0.65, got %v", pred.Prediction.Confidence)
	}
	if llmClient.generateContentCalls != 1 {
		t.Errorf("Expected 1 call to LLM for the narrative, got %d", llmClient.generateContentCalls)
	}
	if !strings.Contains(pred.Narrative, "regular") {
		t.Errorf("Expected generated narrative, got %q", pred.Narrative)
	}

	// --- Step 3: Sharing ---
	t.Log("--- Step 3: Sharing ---")
	resp := app.do(t, http.MethodPost, "/api/v1/users/alice/shares", "")
	var created api.ShareResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode share: %v", err)
	}
	shared := app.prediction(t, "/api/v1/shared/"+created.Token)
	if shared.Prediction.NextPeriodStart != pred.Prediction.NextPeriodStart {
		t.Errorf("Shared prediction differs from owner's prediction")
	}

	// --- Step 4: Archive, restore into a fresh database ---
	t.Log("--- Step 4: Archive and restore ---")
	ctx := context.Background()
	archive, err := storage.NewLogArchive(filepath.Join(tempDir, "archive"))
	if err != nil {
		t.Fatalf("Failed to create archive: %v", err)
	}
	logs, err := app.tracker.Logs(ctx, "alice")
	if err != nil {
		t.Fatalf("Failed to list logs: %v", err)
	}
	if _, err := archive.Save("alice", fixedNow, logs); err != nil {
		t.Fatalf("Failed to archive logs: %v", err)
	}

	restored := newStack(t, filepath.Join(tempDir, "restored.db"), nil)
	snap, err := archive.Latest("alice")
	if err != nil {
		t.Fatalf("Failed to load snapshot: %v", err)
	}
	if err := restored.tracker.ImportLogs(ctx, "alice", snap.Logs); err != nil {
		t.Fatalf("Failed to restore logs: %v", err)
	}

	again := restored.prediction(t, "/api/v1/users/alice/prediction")
	if fmt.Sprint(again.Prediction) != fmt.Sprint(pred.Prediction) {
		t.Errorf("Prediction changed after restore:\n got %+v\nwant %+v", again.Prediction, pred.Prediction)
	}
	if again.LogCount != 12 {
		t.Errorf("Expected 12 restored logs, got %d", again.LogCount)
	}
}
