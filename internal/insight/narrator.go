// Package insight turns a prediction into a short human readable narrative.
package insight

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"cycle-tracker/internal/cycle"
	"cycle-tracker/internal/llm"
)

//go:embed narrator_prompt.md
var narratorPrompt string

var promptTemplate = template.Must(template.New("narrator").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(narratorPrompt))

type promptData struct {
	Today             civil.Date
	CurrentPhase      cycle.Phase
	DaysUntil         int
	ConfidencePercent float64
	Prediction        cycle.CyclePrediction
}

// Narrative is the text shown to the user and where it came from.
type Narrative struct {
	Text      string
	Generated bool
	Usage     llm.TokenUsage
}

// Narrator describes predictions. A nil generator yields plain summaries.
type Narrator struct {
	textGen llm.TextGenerator
	logger  *zap.Logger
}

// NewNarrator creates a Narrator. textGen may be nil.
func NewNarrator(textGen llm.TextGenerator, logger *zap.Logger) *Narrator {
	return &Narrator{textGen: textGen, logger: logger}
}

// Describe narrates p as seen from today. Generator failures fall back to
// the plain summary.
func (n *Narrator) Describe(ctx context.Context, p cycle.CyclePrediction, today civil.Date) Narrative {
	data := newPromptData(p, today)
	fallback := Narrative{Text: Summary(data.Prediction, today)}
	if n.textGen == nil {
		return fallback
	}

	prompt, err := buildPrompt(data)
	if err != nil {
		n.logger.Error("failed to build narrator prompt", zap.Error(err))
		return fallback
	}

	resp, err := n.textGen.GenerateContent(ctx, prompt)
	if err != nil {
		n.logger.Warn("narrative generation failed, using summary", zap.Error(err))
		return fallback
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return fallback
	}

	n.logger.Debug("narrative generated",
		zap.String("model", resp.Usage.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return Narrative{Text: text, Generated: true, Usage: resp.Usage}
}

// Summary is the deterministic narrative used without a language model.
func Summary(p cycle.CyclePrediction, today civil.Date) string {
	var b strings.Builder

	days := cycle.DaysUntilNextPeriod(p, today)
	switch {
	case days > 1:
		fmt.Fprintf(&b, "Your next period is expected in %d days, on %s.", days, p.NextPeriodStart)
	case days == 1:
		fmt.Fprintf(&b, "Your next period is expected tomorrow, %s.", p.NextPeriodStart)
	case days == 0:
		fmt.Fprintf(&b, "Your next period is expected today.")
	default:
		fmt.Fprintf(&b, "Your period was expected %d days ago, on %s.", -days, p.NextPeriodStart)
	}

	if phase, ok := cycle.PhaseOn(p, today); ok {
		fmt.Fprintf(&b, " You are likely in the %s phase.", phase)
	}
	fmt.Fprintf(&b, " Fertile window: %s to %s.", p.NextFertileWindowStart, p.NextFertileWindowEnd)
	fmt.Fprintf(&b, " Confidence: %s.", confidenceLabel(p.Confidence))
	return b.String()
}

func confidenceLabel(c float64) string {
	switch {
	case c >= 0.8:
		return "high"
	case c > cycle.MinConfidence:
		return "moderate"
	default:
		return "low, based on typical cycle lengths"
	}
}

func newPromptData(p cycle.CyclePrediction, today civil.Date) promptData {
	phase, _ := cycle.PhaseOn(p, today)
	return promptData{
		Today:             today,
		CurrentPhase:      phase,
		DaysUntil:         cycle.DaysUntilNextPeriod(p, today),
		ConfidencePercent: p.Confidence * 100,
		Prediction:        p,
	}
}

func buildPrompt(data promptData) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render narrator prompt: %w", err)
	}
	return buf.String(), nil
}
