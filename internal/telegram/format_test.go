package telegram

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"cycle-tracker/internal/cycle"
	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/tracker"
)

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text, command, args string
	}{
		{"/log 2025-03-01 heavy", "/log", "2025-03-01 heavy"},
		{"/predict@CycleBot", "/predict", ""},
		{"  /LOG   today  ", "/log", "today"},
		{"hello", "", "hello"},
	}
	for _, tt := range tests {
		command, args := splitCommand(tt.text)
		if command != tt.command || args != tt.args {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", tt.text, command, args, tt.command, tt.args)
		}
	}
}

func TestParseLogArgs(t *testing.T) {
	today := day("2025-03-10")

	t.Run("Date and flow", func(t *testing.T) {
		log, err := parseLogArgs("2025-03-01 heavy", today)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if log.Date != day("2025-03-01") || log.Flow != cycle.FlowHeavy {
			t.Errorf("unexpected log %+v", log)
		}
	})

	t.Run("Defaults to medium flow", func(t *testing.T) {
		log, err := parseLogArgs("today", today)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if log.Date != today || log.Flow != cycle.FlowMedium {
			t.Errorf("unexpected log %+v", log)
		}
	})

	t.Run("None and symptoms", func(t *testing.T) {
		log, err := parseLogArgs("yesterday none Headache bloating", today)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if log.Date != day("2025-03-09") || log.IsFlowDay() {
			t.Errorf("unexpected log %+v", log)
		}
		if strings.Join(log.Symptoms, ",") != "headache,bloating" {
			t.Errorf("unexpected symptoms %v", log.Symptoms)
		}
	})

	t.Run("Errors", func(t *testing.T) {
		for _, args := range []string{"", "March", "2025-03-01 gushing"} {
			if _, err := parseLogArgs(args, today); err == nil {
				t.Errorf("expected error for %q", args)
			}
		}
	})
}

func TestFormatPredictionMarkdown(t *testing.T) {
	t.Run("Default prediction", func(t *testing.T) {
		today := day("2025-03-01")
		r := tracker.Result{Prediction: cycle.Predict(nil, today), Today: today}
		out := formatPredictionMarkdown(r)

		if !strings.Contains(out, "🔮 *Cycle Prediction*") {
			t.Error("Missing header")
		}
		if !strings.Contains(out, "• Next period: *2025-03-29* to *2025-04-02* (in 28 days)") {
			t.Errorf("Missing next period line:\n%s", out)
		}
		if !strings.Contains(out, "• Confidence: 50%") {
			t.Error("Missing confidence")
		}
		if !strings.Contains(out, "🩸 menstrual: 2025-03-29 to 2025-04-02") {
			t.Error("Missing menstrual phase")
		}
		if !strings.Contains(out, "Based on typical cycle lengths") {
			t.Error("Missing default note")
		}
	})

	t.Run("Historical prediction", func(t *testing.T) {
		var logs []cycle.DailyLog
		for _, start := range []string{"2025-01-01", "2025-01-29", "2025-02-26"} {
			for i := 0; i < 5; i++ {
				logs = append(logs, cycle.DailyLog{Date: day(start).AddDays(i), Flow: cycle.FlowLight})
			}
		}
		today := day("2025-03-10")
		r := tracker.Result{Prediction: cycle.Predict(logs, today), Analysis: cycle.Analyze(logs), Today: today}
		out := formatPredictionMarkdown(r)

		if !strings.Contains(out, "• Confidence: 65%") {
			t.Errorf("Missing confidence:\n%s", out)
		}
		if !strings.Contains(out, "_Average cycle 28.0 days, period 5.0 days._") {
			t.Errorf("Missing averages:\n%s", out)
		}
	})
}

func TestFormatPhaseMarkdown(t *testing.T) {
	p := cycle.Predict(nil, day("2025-03-01"))

	inside := formatPhaseMarkdown(tracker.Result{Prediction: p, Today: day("2025-03-30")})
	if !strings.Contains(inside, "*menstrual* phase (day 2 of 5)") {
		t.Errorf("unexpected phase text: %s", inside)
	}

	outside := formatPhaseMarkdown(tracker.Result{Prediction: p, Today: day("2025-04-10")})
	if !strings.Contains(outside, "outside the predicted window") || !strings.Contains(outside, "12 days overdue") {
		t.Errorf("unexpected phase text: %s", outside)
	}
}

func TestRelativeDays(t *testing.T) {
	cases := map[int]string{0: "today", 1: "tomorrow", 5: "in 5 days", -1: "1 day overdue", -3: "3 days overdue"}
	for n, want := range cases {
		if got := relativeDays(n); got != want {
			t.Errorf("relativeDays(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestFormatShareMarkdown(t *testing.T) {
	expires := time.Date(2025, 3, 17, 9, 30, 0, 0, time.UTC)
	out := formatShareMarkdown(shareLink("https://cycle.example.com", "abc.def"), "abc.def", expires)

	if !strings.Contains(out, "`https://cycle.example.com/api/v1/shared/abc.def`") {
		t.Errorf("Missing link:\n%s", out)
	}
	if !strings.Contains(out, "valid until 2025-03-17 09:30 UTC") {
		t.Errorf("Missing expiry:\n%s", out)
	}
}

func TestFormatMetricsMarkdown(t *testing.T) {
	activity := []metrics.DailyActivity{{Date: "2025-03-10", Predictions: 4, Users: 2, AverageConfidence: 0.575}}
	health := metrics.SysHealth{
		AllocMB:    12,
		SysMB:      40,
		Goroutines: 9,
		Storage:    []metrics.PathUsage{{Path: "data", Bytes: 2048}},
	}
	out := formatMetricsMarkdown(activity, health)

	if !strings.Contains(out, "• *2025-03-10*: 4 predictions, 2 users (avg confidence 0.57)") &&
		!strings.Contains(out, "• *2025-03-10*: 4 predictions, 2 users (avg confidence 0.58)") {
		t.Errorf("Missing activity line:\n%s", out)
	}
	if !strings.Contains(out, "• RAM: 12MB (Alloc) / 40MB (Sys)") {
		t.Error("Missing RAM line")
	}
	if !strings.Contains(out, "• Disk data: 2.0 kB") {
		t.Errorf("Missing disk line:\n%s", out)
	}

	empty := formatMetricsMarkdown(nil, metrics.SysHealth{})
	if !strings.Contains(empty, "_No data yet_") {
		t.Error("Missing empty marker")
	}
}
