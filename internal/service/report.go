package service

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"
)

const (
	iconSync     = "🔁"
	iconNext     = "♻️"
	iconAttn     = "⚠️"
	iconSkipped  = "⏭️"
	iconOrphaned = "🧷"
)

// FormatSyncReport renders a report as Telegram HTML.
func FormatSyncReport(label string, report *SyncReport, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>Recurrence sync</b>", iconSync))
	if label = strings.TrimSpace(label); label != "" {
		b.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(label)))
	}
	b.WriteByte('\n')
	b.WriteString(fmt.Sprintf("🗓 %s\n", report.FinishedAt.In(loc).Format("02.01.2006 15:04")))
	b.WriteString(fmt.Sprintf("Processed %d · created %d", report.Processed, report.Created))
	if report.Truncated {
		b.WriteString(" · <b>cut short</b>")
	}
	b.WriteString("\n")

	if report.Note == NoteNoRulesCollection {
		b.WriteString("\nNo rules attached yet.")
		return b.String()
	}

	var moved []RuleOutcome
	for _, d := range report.Details {
		if d.MovedRule {
			moved = append(moved, d)
		}
	}
	sort.SliceStable(moved, func(i, j int) bool { return moved[i].Next < moved[j].Next })

	b.WriteString(fmt.Sprintf("\n%s <b>Next occurrences</b>\n", iconNext))
	if len(moved) == 0 {
		b.WriteString("· nothing completed since the last pass\n")
	}
	for _, d := range moved {
		b.WriteString(formatOutcome(d))
	}

	if failures := report.Failures(); len(failures) > 0 {
		b.WriteString(fmt.Sprintf("\n%s <b>Needs attention</b>\n", iconAttn))
		for _, d := range failures {
			b.WriteString(formatOutcome(d))
		}
	}
	return strings.TrimSpace(b.String())
}

func formatOutcome(d RuleOutcome) string {
	var sb strings.Builder
	title := strings.TrimSpace(d.Title)
	if title == "" {
		title = d.RuleID
	}

	icon := iconNext
	switch d.Code() {
	case OutcomeCreated:
	case OutcomeRepointFailed:
		icon = iconOrphaned
	case OutcomeTaskArchived, OutcomeOtherCollection, OutcomeNotDone:
		icon = iconSkipped
	default:
		icon = iconAttn
	}
	sb.WriteString(fmt.Sprintf("%s %s", icon, html.EscapeString(title)))

	if d.Next != "" {
		sb.WriteString(fmt.Sprintf("\n   📆 next: %s", html.EscapeString(d.Next)))
	}
	if d.ReplacementRuleID != "" {
		sb.WriteString("\n   🔀 rule moved to a replacement row")
	}
	if d.Code() != OutcomeCreated {
		sb.WriteString(fmt.Sprintf("\n   ❗ %s", html.EscapeString(d.Note)))
	}
	sb.WriteByte('\n')
	return sb.String()
}
