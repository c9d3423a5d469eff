package telegram

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cycle-tracker/internal/cycle"
	"cycle-tracker/internal/metrics"
	"cycle-tracker/internal/tracker"
)

const helpText = `🌸 *Cycle Tracker*

/log YYYY-MM-DD [flow] [symptoms...] - log a day (flow: spotting, light, medium, heavy, very\_heavy, none)
/unlog YYYY-MM-DD - remove a logged day
/predict - next period, fertile window and phases
/phase - the phase you are likely in today
/insight - a short summary of your cycle
/share - create a read-only link to your prediction
/unshare TOKEN - revoke a link`

var phaseEmoji = map[cycle.Phase]string{
	cycle.PhaseMenstrual:  "🩸",
	cycle.PhaseFollicular: "🌱",
	cycle.PhaseOvulation:  "🥚",
	cycle.PhaseLuteal:     "🌙",
}

var errLogUsage = errors.New("usage: /log YYYY-MM-DD [flow] [symptoms...]")

// splitCommand separates "/cmd@botname args" into "/cmd" and "args".
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	command, args, _ := strings.Cut(text, " ")
	command, _, _ = strings.Cut(command, "@")
	return strings.ToLower(command), strings.TrimSpace(args)
}

// parseDayArg accepts a date or the words today and yesterday.
func parseDayArg(arg string, today civil.Date) (civil.Date, error) {
	switch strings.ToLower(arg) {
	case "today":
		return today, nil
	case "yesterday":
		return today.AddDays(-1), nil
	}
	return cycle.ParseDate(arg)
}

// parseLogArgs reads "/log" arguments. Flow defaults to medium; anything
// after the flow is recorded as symptoms.
func parseLogArgs(args string, today civil.Date) (cycle.DailyLog, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return cycle.DailyLog{}, errLogUsage
	}

	day, err := parseDayArg(fields[0], today)
	if err != nil {
		return cycle.DailyLog{}, errLogUsage
	}

	log := cycle.DailyLog{Date: day, Flow: cycle.FlowMedium}
	if len(fields) > 1 {
		flow, err := cycle.ParseFlow(fields[1])
		if err != nil {
			return cycle.DailyLog{}, err
		}
		log.Flow = flow
	}
	if len(fields) > 2 {
		for _, s := range fields[2:] {
			log.Symptoms = append(log.Symptoms, strings.ToLower(s))
		}
	}
	return log, nil
}

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func formatLogged(log cycle.DailyLog) string {
	flow := "no flow"
	if log.IsFlowDay() {
		flow = escape(string(log.Flow))
	}
	text := fmt.Sprintf("✅ Logged *%s*: %s", log.Date, flow)
	if len(log.Symptoms) > 0 {
		text += fmt.Sprintf(" (%s)", escape(strings.Join(log.Symptoms, ", ")))
	}
	return text
}

func relativeDays(n int) string {
	switch {
	case n == 0:
		return "today"
	case n == 1:
		return "tomorrow"
	case n > 1:
		return fmt.Sprintf("in %d days", n)
	case n == -1:
		return "1 day overdue"
	default:
		return fmt.Sprintf("%d days overdue", -n)
	}
}

func formatPredictionMarkdown(r tracker.Result) string {
	p := r.Prediction

	var sb strings.Builder
	sb.WriteString("🔮 *Cycle Prediction*\n\n")
	sb.WriteString(fmt.Sprintf("• Next period: *%s* to *%s* (%s)\n",
		p.NextPeriodStart, p.NextPeriodEnd, relativeDays(cycle.DaysUntilNextPeriod(p, r.Today))))
	sb.WriteString(fmt.Sprintf("• Fertile window: %s to %s\n", p.NextFertileWindowStart, p.NextFertileWindowEnd))
	sb.WriteString(fmt.Sprintf("• Ovulation: %s\n", p.NextOvulationDate))
	sb.WriteString(fmt.Sprintf("• Confidence: %.0f%%\n", p.Confidence*100))

	sb.WriteString("\n📆 *Phases*\n")
	for _, phase := range p.Phases {
		if phase.Days() <= 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("%s %s: %s to %s\n", phaseEmoji[phase.Phase], phase.Phase, phase.StartDate, phase.EndDate))
	}

	if !r.Analysis.HasHistory() {
		sb.WriteString("\n_Based on typical cycle lengths. Log at least three periods for a personal prediction._")
	} else {
		sb.WriteString(fmt.Sprintf("\n_Average cycle %.1f days, period %.1f days._",
			r.Analysis.AverageCycleLength, r.Analysis.AveragePeriodLength))
	}
	return sb.String()
}

func formatPhaseMarkdown(r tracker.Result) string {
	for _, phase := range r.Prediction.Phases {
		if phase.Days() <= 0 || !phase.Contains(r.Today) {
			continue
		}
		return fmt.Sprintf("%s You are likely in the *%s* phase (day %d of %d).\nCommon: %s",
			phaseEmoji[phase.Phase],
			phase.Phase,
			r.Today.DaysSince(phase.StartDate)+1,
			phase.Days(),
			strings.Join(phase.Symptoms, ", "),
		)
	}
	return fmt.Sprintf("🤷 Today is outside the predicted window. Next period expected %s.",
		relativeDays(cycle.DaysUntilNextPeriod(r.Prediction, r.Today)))
}

func shareLink(baseURL, token string) string {
	return baseURL + "/api/v1/shared/" + token
}

func formatShareMarkdown(link, token string, expiresAt time.Time) string {
	return fmt.Sprintf("🔗 *Share link* (valid until %s UTC)\n`%s`\n\nRevoke with:\n`/unshare %s`",
		expiresAt.UTC().Format("2006-01-02 15:04"), link, token)
}

func formatMetricsMarkdown(activity []metrics.DailyActivity, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent Predictions*\n")
	if len(activity) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range activity {
		sb.WriteString(fmt.Sprintf("• *%s*: %d predictions, %d users (avg confidence %.2f)\n",
			d.Date, d.Predictions, d.Users, d.AverageConfidence))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	for _, u := range health.Storage {
		sb.WriteString(fmt.Sprintf("• Disk %s: %s\n", escape(u.Path), u.Human()))
	}
	return sb.String()
}
