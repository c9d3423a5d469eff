package insight

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"cycle-tracker/internal/cycle"
	"cycle-tracker/internal/llm"
)

type mockTextGenerator struct {
	content string
	err     error
	prompt  string
}

func (m *mockTextGenerator) GenerateContent(ctx context.Context, prompt string) (llm.ContentResponse, error) {
	m.prompt = prompt
	if m.err != nil {
		return llm.ContentResponse{}, m.err
	}
	return llm.ContentResponse{
		Content: m.content,
		Usage:   llm.TokenUsage{Model: "test-model", TotalTokens: 42},
	}, nil
}

func day(s string) civil.Date {
	d, err := civil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// prediction with no history: period started 2025-03-01, next expected 2025-03-29.
func defaultPrediction() cycle.CyclePrediction {
	return cycle.Predict(nil, day("2025-03-01"))
}

func TestNarrator_Describe(t *testing.T) {
	ctx := context.Background()
	today := day("2025-03-10")
	p := defaultPrediction()

	t.Run("Without generator returns summary", func(t *testing.T) {
		n := NewNarrator(nil, zap.NewNop())
		got := n.Describe(ctx, p, today)

		assert.False(t, got.Generated)
		assert.Equal(t, Summary(p, today), got.Text)
	})

	t.Run("Uses generated text", func(t *testing.T) {
		gen := &mockTextGenerator{content: "  Expect your period around March 29.\n"}
		n := NewNarrator(gen, zap.NewNop())
		got := n.Describe(ctx, p, today)

		assert.True(t, got.Generated)
		assert.Equal(t, "Expect your period around March 29.", got.Text)
		assert.Equal(t, 42, got.Usage.TotalTokens)

		assert.Contains(t, gen.prompt, "# Cycle Narrator Prompt")
		assert.Contains(t, gen.prompt, "Today: 2025-03-10")
		assert.Contains(t, gen.prompt, "Next period: 2025-03-29 to 2025-04-02")
		assert.Contains(t, gen.prompt, "Confidence: 50%")
		assert.Contains(t, gen.prompt, "- menstrual: 2025-03-29 to 2025-04-02 (common: cramps, fatigue, breast tenderness)")
	})

	t.Run("Generator error falls back and logs", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		gen := &mockTextGenerator{err: errors.New("quota exceeded")}
		n := NewNarrator(gen, zap.New(core))

		got := n.Describe(ctx, p, today)
		assert.False(t, got.Generated)
		assert.Equal(t, Summary(p, today), got.Text)
		require.Equal(t, 1, logs.Len())
		assert.Equal(t, "narrative generation failed, using summary", logs.All()[0].Message)
	})

	t.Run("Blank generation falls back", func(t *testing.T) {
		n := NewNarrator(&mockTextGenerator{content: "   "}, zap.NewNop())
		assert.False(t, n.Describe(ctx, p, today).Generated)
	})
}

func TestSummary(t *testing.T) {
	p := defaultPrediction()

	tests := []struct {
		name  string
		today string
		want  string
	}{
		{
			name:  "days ahead",
			today: "2025-03-10",
			want:  "Your next period is expected in 19 days, on 2025-03-29.",
		},
		{
			name:  "tomorrow",
			today: "2025-03-28",
			want:  "Your next period is expected tomorrow, 2025-03-29.",
		},
		{
			name:  "today",
			today: "2025-03-29",
			want:  "Your next period is expected today.",
		},
		{
			name:  "overdue",
			today: "2025-04-05",
			want:  "Your period was expected 7 days ago, on 2025-03-29.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Summary(p, day(tt.today))
			assert.Contains(t, got, tt.want)
			assert.Contains(t, got, "Confidence: low, based on typical cycle lengths.")
		})
	}

	t.Run("mentions current phase", func(t *testing.T) {
		got := Summary(p, day("2025-03-29"))
		assert.Contains(t, got, "You are likely in the menstrual phase.")
	})
}

func TestConfidenceLabel(t *testing.T) {
	assert.Equal(t, "high", confidenceLabel(0.95))
	assert.Equal(t, "high", confidenceLabel(0.8))
	assert.Equal(t, "moderate", confidenceLabel(0.6))
	assert.Equal(t, "low, based on typical cycle lengths", confidenceLabel(0.5))
}
