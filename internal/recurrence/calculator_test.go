package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurio/internal/model"
)

// pastNow keeps the future floor out of the way for arithmetic tests.
var pastNow = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func mustParse(t *testing.T, raw string) Date {
	t.Helper()
	d, err := ParseDate(raw)
	require.NoError(t, err)
	return d
}

func TestComputeNext_MonthEndRollsOverPerTimeAddDate(t *testing.T) {
	// Jan 31 2024 + 1 month normalizes Feb 31 to Mar 2 (2024 is a leap year).
	next := ComputeNext(mustParse(t, "2024-01-31"), model.Rule{Frequency: model.FrequencyMonthly, Interval: 1}, pastNow)

	assert.True(t, next.DateOnly)
	assert.Equal(t, "2024-03-02", next.String())
}

func TestComputeNext_WeeklyEmptySetUsesAnchorWeekday(t *testing.T) {
	anchor := mustParse(t, "2024-06-10T09:00:00Z") // Monday
	next := ComputeNext(anchor, model.Rule{Frequency: model.FrequencyWeekly, Interval: 1}, pastNow)

	assert.Equal(t, "2024-06-17T09:00:00Z", next.String())
}

func TestComputeNext_WeeklyIntervalSpacing(t *testing.T) {
	anchor := mustParse(t, "2024-06-10T09:00:00Z") // Monday
	rule := model.Rule{Frequency: model.FrequencyWeekly, Interval: 2, ByWeekday: []model.Weekday{model.Monday}}

	next := ComputeNext(anchor, rule, pastNow)

	assert.Equal(t, 14*24*time.Hour, next.Time.Sub(anchor.Time))
	assert.Equal(t, "2024-06-24T09:00:00Z", next.String())
}

func TestComputeNext_WeeklyMultipleDays(t *testing.T) {
	rule := model.Rule{Frequency: model.FrequencyWeekly, Interval: 2, ByWeekday: []model.Weekday{model.Monday, model.Wednesday}}

	tests := []struct {
		anchor string
		want   string
	}{
		{"2024-06-10", "2024-06-12"}, // Mon -> Wed of the same week
		{"2024-06-12", "2024-06-17"}, // Wed -> Mon five days later, still week 0
		{"2024-06-17", "2024-06-19"},
	}
	for _, tt := range tests {
		t.Run(tt.anchor, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeNext(mustParse(t, tt.anchor), rule, pastNow).String())
		})
	}
}

func TestComputeNext_WeeklyFallsBackWhenScanFindsNothing(t *testing.T) {
	// A 60 week interval on the anchor's own weekday never qualifies within
	// the scan window, so the result is anchor + 7*60 days.
	anchor := mustParse(t, "2024-06-10")
	next := ComputeNext(anchor, model.Rule{Frequency: model.FrequencyWeekly, Interval: 60}, pastNow)

	assert.Equal(t, "2025-08-04", next.String())
	assert.True(t, next.DateOnly)
}

func TestComputeNext_DailyAndYearly(t *testing.T) {
	tests := []struct {
		name   string
		anchor string
		rule   model.Rule
		want   string
	}{
		{"daily date only", "2024-03-30", model.Rule{Frequency: model.FrequencyDaily, Interval: 3}, "2024-04-02"},
		{"daily instant", "2024-03-30T18:15:00+02:00", model.Rule{Frequency: model.FrequencyDaily, Interval: 1}, "2024-03-31T18:15:00+02:00"},
		{"yearly leap day", "2024-02-29", model.Rule{Frequency: model.FrequencyYearly, Interval: 1}, "2025-03-01"},
		{"monthly interval", "2024-01-15", model.Rule{Frequency: model.FrequencyMonthly, Interval: 3}, "2024-04-15"},
		{"zero interval coerced", "2024-01-15", model.Rule{Frequency: model.FrequencyDaily, Interval: 0}, "2024-01-16"},
		{"negative interval coerced", "2024-01-15", model.Rule{Frequency: model.FrequencyDaily, Interval: -4}, "2024-01-16"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeNext(mustParse(t, tt.anchor), tt.rule, pastNow).String())
		})
	}
}

func TestComputeNext_TimeOfDay(t *testing.T) {
	rule := model.Rule{Frequency: model.FrequencyDaily, Interval: 1, TimeOfDay: "07:30"}

	next := ComputeNext(mustParse(t, "2024-05-01T22:10:45Z"), rule, pastNow)
	assert.Equal(t, "2024-05-02T07:30:00Z", next.String())

	promoted := ComputeNext(mustParse(t, "2024-05-01"), rule, pastNow)
	assert.False(t, promoted.DateOnly)
	assert.Equal(t, "2024-05-02T07:30:00Z", promoted.String())

	rule.TimeOfDay = "25:00"
	untouched := ComputeNext(mustParse(t, "2024-05-01T22:10:45Z"), rule, pastNow)
	assert.Equal(t, "2024-05-02T22:10:45Z", untouched.String())
}

func TestComputeNext_AnchorFloor(t *testing.T) {
	// Midnight on the next day is only one minute after the anchor.
	anchor := mustParse(t, "2024-05-01T23:59:00Z")
	rule := model.Rule{Frequency: model.FrequencyDaily, Interval: 1, TimeOfDay: "00:00"}

	next := ComputeNext(anchor, rule, pastNow)

	assert.True(t, next.Time.After(anchor.Time.Add(time.Minute)))
}

func TestComputeNext_FutureFloor(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 30, 0, time.UTC)
	rule := model.Rule{Frequency: model.FrequencyDaily, Interval: 1}

	instant := ComputeNext(mustParse(t, "2024-01-01T09:00:00Z"), rule, now)
	assert.True(t, instant.Time.Equal(now.Add(time.Minute)), "got %s", instant)

	dateOnly := ComputeNext(mustParse(t, "2024-01-01"), rule, now)
	assert.True(t, dateOnly.DateOnly)
	assert.Equal(t, "2026-10-16", dateOnly.String())
}

func TestComputeNext_ZeroAnchorUsesNow(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	next := ComputeNext(Date{}, model.Rule{Frequency: model.FrequencyDaily, Interval: 1}, now)

	assert.True(t, next.Time.Equal(now.AddDate(0, 0, 1)), "got %s", next)
}

func TestComputeNext_CustomOverride(t *testing.T) {
	anchor := mustParse(t, "2024-06-10T09:00:00Z")

	weekly := model.Rule{Frequency: model.FrequencyCustom, Interval: 1, CustomOverride: "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO"}
	assert.Equal(t, "2024-06-24T09:00:00Z", ComputeNext(anchor, weekly, pastNow).String())

	noFreq := model.Rule{Frequency: model.FrequencyCustom, Interval: 1, CustomOverride: "INTERVAL=3"}
	assert.Equal(t, "2024-06-13T09:00:00Z", ComputeNext(anchor, noFreq, pastNow).String())

	// Unusable override keeps the structured fields.
	fallback := model.Rule{Frequency: model.FrequencyMonthly, Interval: 1, CustomOverride: "BOGUS"}
	assert.Equal(t, "2024-07-10T09:00:00Z", ComputeNext(anchor, fallback, pastNow).String())
}

func TestComputeNext_AlwaysAfterAnchorAndNow(t *testing.T) {
	now := time.Now()
	anchors := []string{
		"2024-01-31", "2023-12-31T23:59:00Z", "2030-02-28", "2030-06-01T10:00:00-07:00",
		now.Format(time.RFC3339), now.Format("2006-01-02"),
	}
	rules := []model.Rule{
		{Frequency: model.FrequencyDaily},
		{Frequency: model.FrequencyWeekly, Interval: 3, ByWeekday: []model.Weekday{model.Friday, model.Sunday}},
		{Frequency: model.FrequencyWeekly, Interval: 99},
		{Frequency: model.FrequencyMonthly, TimeOfDay: "00:00"},
		{Frequency: model.FrequencyYearly, Interval: 2},
		{Frequency: model.FrequencyCustom, CustomOverride: "FREQ=MONTHLY"},
	}
	for _, raw := range anchors {
		anchor := mustParse(t, raw)
		for _, rule := range rules {
			next := ComputeNext(anchor, rule, now)
			assert.True(t, next.Time.After(anchor.Time), "anchor %s rule %+v -> %s", raw, rule, next)
			assert.True(t, next.Time.After(now), "anchor %s rule %+v -> %s", raw, rule, next)
			if rule.TimeOfDay == "" {
				assert.Equal(t, anchor.DateOnly, next.DateOnly)
			}
		}
	}
}
