package cycle

import (
	"cloud.google.com/go/civil"
)

// FlowIntensity is the logged menstrual flow for a day. The zero value means
// nothing was logged.
type FlowIntensity string

const (
	FlowUnset     FlowIntensity = ""
	FlowSpotting  FlowIntensity = "spotting"
	FlowLight     FlowIntensity = "light"
	FlowMedium    FlowIntensity = "medium"
	FlowHeavy     FlowIntensity = "heavy"
	FlowVeryHeavy FlowIntensity = "very_heavy"
)

// Phase names one of the four predicted cycle phases.
type Phase string

const (
	PhaseMenstrual  Phase = "menstrual"
	PhaseFollicular Phase = "follicular"
	PhaseOvulation  Phase = "ovulation"
	PhaseLuteal     Phase = "luteal"
)

// DailyLog is a single day of tracking data. Only Date and Flow feed the
// predictor; the remaining fields are carried for storage and display.
type DailyLog struct {
	Date        civil.Date    `json:"date"`
	Flow        FlowIntensity `json:"flow,omitempty"`
	Symptoms    []string      `json:"symptoms,omitempty"`
	Moods       []string      `json:"moods,omitempty"`
	Notes       string        `json:"notes,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

// IsFlowDay reports whether the log carries a flow value.
func (l DailyLog) IsFlowDay() bool {
	return l.Flow != FlowUnset
}

// PhasePrediction is an inclusive date window for one phase.
type PhasePrediction struct {
	Phase     Phase      `json:"phase"`
	StartDate civil.Date `json:"start_date"`
	EndDate   civil.Date `json:"end_date"`
	Symptoms  []string   `json:"symptoms"`
}

// Days returns the inclusive length of the window. Clamped phases may be zero.
func (p PhasePrediction) Days() int {
	return p.EndDate.DaysSince(p.StartDate) + 1
}

// Contains reports whether day falls inside the window.
func (p PhasePrediction) Contains(day civil.Date) bool {
	return !day.Before(p.StartDate) && !day.After(p.EndDate)
}

// CyclePrediction is the forward-looking result of Predict.
type CyclePrediction struct {
	NextPeriodStart        civil.Date        `json:"next_period_start"`
	NextPeriodEnd          civil.Date        `json:"next_period_end"`
	NextFertileWindowStart civil.Date        `json:"next_fertile_window_start"`
	NextFertileWindowEnd   civil.Date        `json:"next_fertile_window_end"`
	NextOvulationDate      civil.Date        `json:"next_ovulation_date"`
	Confidence             float64           `json:"confidence"`
	Phases                 []PhasePrediction `json:"phases"`
}

// Analysis is the history Predict derives from the logs before projecting.
type Analysis struct {
	PeriodStarts        []civil.Date `json:"period_starts"`
	FlowDays            int          `json:"flow_days"`
	AverageCycleLength  float64      `json:"average_cycle_length"`
	AveragePeriodLength float64      `json:"average_period_length"`
}

// Intervals returns the number of detected period intervals.
func (a Analysis) Intervals() int {
	return len(a.PeriodStarts)
}

// HasHistory reports whether there is enough history to average over.
func (a Analysis) HasHistory() bool {
	return len(a.PeriodStarts) >= minHistoricalIntervals
}
