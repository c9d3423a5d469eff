// Package cycle predicts upcoming menstrual cycle phases from daily logs.
//
// Predict is a pure function of its inputs: it keeps no state between calls and
// is safe to call concurrently as long as callers do not mutate the slice they
// pass in while it runs.
package cycle

import (
	"math"
	"sort"

	"cloud.google.com/go/civil"
)

const (
	DefaultCycleLength  = 28
	DefaultPeriodLength = 5
	DefaultOvulationDay = 14

	// FertileWindowDays is how many days before ovulation the fertile window opens.
	FertileWindowDays = 5

	// MinConfidence is reported when the prediction uses population averages.
	MinConfidence = 0.5
	// MaxConfidence caps historical predictions.
	MaxConfidence = 0.95

	confidencePerInterval = 0.05

	// A gap between consecutive flow days larger than this starts a new period.
	maxIntraPeriodGap = 2

	minHistoricalIntervals = 2
)

var phaseSymptoms = map[Phase][]string{
	PhaseMenstrual:  {"cramps", "fatigue", "breast tenderness"},
	PhaseFollicular: {"energy"},
	PhaseOvulation:  {"breast tenderness", "mood swings"},
	PhaseLuteal:     {"bloating", "breast tenderness", "mood swings"},
}

// SymptomsFor returns the symptoms commonly associated with a phase.
func SymptomsFor(phase Phase) []string {
	symptoms := phaseSymptoms[phase]
	out := make([]string, len(symptoms))
	copy(out, symptoms)
	return out
}

// Predict projects the next period, fertile window and phases from logs.
// today anchors the default prediction when no flow has been logged.
func Predict(logs []DailyLog, today civil.Date) CyclePrediction {
	analysis := Analyze(logs)

	switch {
	case analysis.Intervals() == 0:
		return defaultPrediction(today)
	case !analysis.HasHistory():
		return defaultPrediction(analysis.PeriodStarts[0])
	}

	return historicalPrediction(analysis)
}

// Analyze segments the flow days in logs into period intervals and averages
// the cycle and period lengths. Averages are zero without enough history.
func Analyze(logs []DailyLog) Analysis {
	flowDays := sortedFlowDays(logs)
	starts := periodStarts(flowDays)

	analysis := Analysis{
		PeriodStarts: starts,
		FlowDays:     len(flowDays),
	}
	if len(starts) < minHistoricalIntervals {
		return analysis
	}

	totalGap := 0
	for i := 1; i < len(starts); i++ {
		totalGap += starts[i].DaysSince(starts[i-1])
	}
	analysis.AverageCycleLength = float64(totalGap) / float64(len(starts)-1)

	avgPeriod := float64(len(flowDays)) / float64(len(starts))
	if avgPeriod == 0 || math.IsNaN(avgPeriod) {
		avgPeriod = DefaultPeriodLength
	}
	analysis.AveragePeriodLength = avgPeriod

	return analysis
}

// sortedFlowDays returns the distinct calendar dates that carry flow, ascending.
func sortedFlowDays(logs []DailyLog) []civil.Date {
	seen := make(map[civil.Date]struct{}, len(logs))
	days := make([]civil.Date, 0, len(logs))
	for _, l := range logs {
		if !l.IsFlowDay() || !l.Date.IsValid() {
			continue
		}
		if _, ok := seen[l.Date]; ok {
			continue
		}
		seen[l.Date] = struct{}{}
		days = append(days, l.Date)
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].Before(days[j])
	})
	return days
}

func periodStarts(flowDays []civil.Date) []civil.Date {
	var starts []civil.Date
	for i, day := range flowDays {
		if i == 0 || day.DaysSince(flowDays[i-1]) > maxIntraPeriodGap {
			starts = append(starts, day)
		}
	}
	return starts
}

func historicalPrediction(a Analysis) CyclePrediction {
	cycleLength := roundDays(a.AverageCycleLength)
	periodLength := roundDays(a.AveragePeriodLength)
	lastStart := a.PeriodStarts[len(a.PeriodStarts)-1]

	nextStart := lastStart.AddDays(cycleLength)
	ovulation := nextStart.AddDays(-roundDays(a.AverageCycleLength / 2))

	return project(projection{
		lastPeriodEnd:   lastStart.AddDays(periodLength - 1),
		nextPeriodStart: nextStart,
		nextPeriodEnd:   nextStart.AddDays(periodLength - 1),
		ovulation:       ovulation,
		confidence:      historicalConfidence(a.Intervals()),
	})
}

func defaultPrediction(anchor civil.Date) CyclePrediction {
	nextStart := anchor.AddDays(DefaultCycleLength)
	return project(projection{
		lastPeriodEnd:   anchor.AddDays(DefaultPeriodLength - 1),
		nextPeriodStart: nextStart,
		nextPeriodEnd:   nextStart.AddDays(DefaultPeriodLength - 1),
		ovulation:       nextStart.AddDays(-DefaultOvulationDay),
		confidence:      MinConfidence,
	})
}

// historicalConfidence grows with the number of observed intervals.
func historicalConfidence(intervals int) float64 {
	c := MinConfidence + confidencePerInterval*float64(intervals)
	if c > MaxConfidence {
		c = MaxConfidence
	}
	return math.Round(c*100) / 100
}

type projection struct {
	lastPeriodEnd   civil.Date
	nextPeriodStart civil.Date
	nextPeriodEnd   civil.Date
	ovulation       civil.Date
	confidence      float64
}

func project(p projection) CyclePrediction {
	fertileStart := p.ovulation.AddDays(-FertileWindowDays)
	return CyclePrediction{
		NextPeriodStart:        p.nextPeriodStart,
		NextPeriodEnd:          p.nextPeriodEnd,
		NextFertileWindowStart: fertileStart,
		NextFertileWindowEnd:   p.ovulation,
		NextOvulationDate:      p.ovulation,
		Confidence:             p.confidence,
		Phases:                 buildPhases(p.lastPeriodEnd, fertileStart, p.ovulation, p.nextPeriodStart, p.nextPeriodEnd),
	}
}

// buildPhases lays the four phases end to end from the day after the last
// period through the next predicted period. Boundaries are clamped so the
// windows never overlap and the menstrual phase is always exactly the next
// predicted period.
func buildPhases(lastPeriodEnd, fertileStart, ovulation, nextStart, nextEnd civil.Date) []PhasePrediction {
	lastPrePeriodDay := nextStart.AddDays(-1)

	start := lastPeriodEnd.AddDays(1)
	if start.After(nextStart) {
		start = nextStart
	}

	bounds := []struct {
		phase Phase
		end   civil.Date
	}{
		{PhaseFollicular, fertileStart.AddDays(-1)},
		{PhaseOvulation, ovulation},
		{PhaseLuteal, lastPrePeriodDay},
	}

	phases := make([]PhasePrediction, 0, len(bounds)+1)
	for _, b := range bounds {
		end := clampDate(b.end, start.AddDays(-1), lastPrePeriodDay)
		phases = append(phases, PhasePrediction{
			Phase:     b.phase,
			StartDate: start,
			EndDate:   end,
			Symptoms:  SymptomsFor(b.phase),
		})
		start = end.AddDays(1)
	}

	return append(phases, PhasePrediction{
		Phase:     PhaseMenstrual,
		StartDate: nextStart,
		EndDate:   nextEnd,
		Symptoms:  SymptomsFor(PhaseMenstrual),
	})
}

func clampDate(d, lo, hi civil.Date) civil.Date {
	if d.Before(lo) {
		return lo
	}
	if d.After(hi) {
		return hi
	}
	return d
}

func roundDays(v float64) int {
	return int(math.Round(v))
}
