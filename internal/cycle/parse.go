package cycle

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// ParseFlow maps user input to a FlowIntensity. Empty input and "none" both
// mean no flow was logged.
func ParseFlow(s string) (FlowIntensity, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	normalized = strings.NewReplacer("-", "_", " ", "_").Replace(normalized)

	switch FlowIntensity(normalized) {
	case FlowUnset, "none":
		return FlowUnset, nil
	case FlowSpotting, FlowLight, FlowMedium, FlowHeavy, FlowVeryHeavy:
		return FlowIntensity(normalized), nil
	}
	return FlowUnset, fmt.Errorf("unknown flow intensity %q", s)
}

// ParseDate accepts a calendar date ("2006-01-02") or an RFC 3339 timestamp,
// whose calendar day is taken as written.
func ParseDate(s string) (civil.Date, error) {
	s = strings.TrimSpace(s)
	if d, err := civil.ParseDate(s); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return civil.DateOf(t), nil
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

// PhaseOn reports which predicted phase day falls in, if any.
func PhaseOn(p CyclePrediction, day civil.Date) (Phase, bool) {
	for _, phase := range p.Phases {
		if phase.Days() > 0 && phase.Contains(day) {
			return phase.Phase, true
		}
	}
	return "", false
}

// DaysUntilNextPeriod returns the number of days from today until the
// predicted start; negative when the prediction is already overdue.
func DaysUntilNextPeriod(p CyclePrediction, today civil.Date) int {
	return p.NextPeriodStart.DaysSince(today)
}

// LogInput is a daily log as received from untrusted input, before its date
// and flow have been validated.
type LogInput struct {
	Date        string   `json:"date"`
	Flow        string   `json:"flow,omitempty"`
	Symptoms    []string `json:"symptoms,omitempty"`
	Moods       []string `json:"moods,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Parse validates the input into a DailyLog.
func (in LogInput) Parse() (DailyLog, error) {
	date, err := ParseDate(in.Date)
	if err != nil {
		return DailyLog{}, err
	}
	flow, err := ParseFlow(in.Flow)
	if err != nil {
		return DailyLog{}, err
	}
	return DailyLog{
		Date:        date,
		Flow:        flow,
		Symptoms:    in.Symptoms,
		Moods:       in.Moods,
		Notes:       in.Notes,
		Temperature: in.Temperature,
	}, nil
}

// ParseLogs converts inputs leniently: entries that fail to parse are
// dropped and counted in skipped.
func ParseLogs(inputs []LogInput) (logs []DailyLog, skipped int) {
	logs = make([]DailyLog, 0, len(inputs))
	for _, in := range inputs {
		log, err := in.Parse()
		if err != nil {
			skipped++
			continue
		}
		logs = append(logs, log)
	}
	return logs, skipped
}
