package model

import (
	"strconv"
	"strings"
)

// Frequency is the unit a rule repeats in.
type Frequency string

const (
	FrequencyDaily   Frequency = "Daily"
	FrequencyWeekly  Frequency = "Weekly"
	FrequencyMonthly Frequency = "Monthly"
	FrequencyYearly  Frequency = "Yearly"
	FrequencyCustom  Frequency = "Custom"
)

// ParseFrequency accepts any casing ("weekly", "WEEKLY", "Weekly").
func ParseFrequency(raw string) (Frequency, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DAILY":
		return FrequencyDaily, true
	case "WEEKLY":
		return FrequencyWeekly, true
	case "MONTHLY":
		return FrequencyMonthly, true
	case "YEARLY":
		return FrequencyYearly, true
	case "CUSTOM":
		return FrequencyCustom, true
	}
	return "", false
}

// Weekday is a two-letter weekday code as used by BYDAY.
type Weekday string

const (
	Sunday    Weekday = "SU"
	Monday    Weekday = "MO"
	Tuesday   Weekday = "TU"
	Wednesday Weekday = "WE"
	Thursday  Weekday = "TH"
	Friday    Weekday = "FR"
	Saturday  Weekday = "SA"
)

// Weekdays lists the valid codes indexed by time.Weekday.
var Weekdays = [7]Weekday{Sunday, Monday, Tuesday, Wednesday, Thursday, Friday, Saturday}

// ParseWeekday normalizes a code; unknown codes report false.
func ParseWeekday(raw string) (Weekday, bool) {
	code := Weekday(strings.ToUpper(strings.TrimSpace(raw)))
	for _, w := range Weekdays {
		if w == code {
			return w, true
		}
	}
	return "", false
}

// Index returns the time.Weekday number (Sunday = 0).
func (w Weekday) Index() int {
	for i, d := range Weekdays {
		if d == w {
			return i
		}
	}
	return -1
}

// Rule is one recurring series. TaskRef points at the task currently governed
// by the rule and only the sync orchestrator advances it. Replaces names the
// row a replacement superseded when that row could not be moved.
type Rule struct {
	PageID         string    `json:"pageId"`
	Title          string    `json:"title"`
	Frequency      Frequency `json:"frequency"`
	Interval       int       `json:"interval"`
	ByWeekday      []Weekday `json:"byWeekday,omitempty"`
	TimeOfDay      string    `json:"timeOfDay,omitempty"`
	Timezone       string    `json:"timezone,omitempty"`
	CustomOverride string    `json:"customOverride,omitempty"`
	Active         bool      `json:"active"`
	TaskRef        string    `json:"taskRef"`
	Version        int       `json:"version"`
	Replaces       string    `json:"replaces,omitempty"`
}

// Normalize coerces the rule into its valid shape: interval of at least 1,
// known weekday codes only, and a TimeOfDay that is either valid or empty.
func (r Rule) Normalize() Rule {
	if r.Frequency == "" {
		r.Frequency = FrequencyWeekly
	}
	if r.Interval < 1 {
		r.Interval = 1
	}
	r.ByWeekday = NormalizeWeekdays(r.ByWeekday)
	if _, _, ok := ParseTimeOfDay(r.TimeOfDay); !ok {
		r.TimeOfDay = ""
	} else {
		r.TimeOfDay = strings.TrimSpace(r.TimeOfDay)
	}
	r.Timezone = strings.TrimSpace(r.Timezone)
	r.CustomOverride = strings.TrimSpace(r.CustomOverride)
	r.TaskRef = strings.TrimSpace(r.TaskRef)
	return r
}

// NormalizeWeekdays drops invalid and duplicate codes, keeping input order.
func NormalizeWeekdays(in []Weekday) []Weekday {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[Weekday]bool, len(in))
	out := make([]Weekday, 0, len(in))
	for _, raw := range in {
		w, ok := ParseWeekday(string(raw))
		if !ok || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParseTimeOfDay parses "H:mm" or "HH:mm" in 24-hour form.
func ParseTimeOfDay(raw string) (hour, minute int, ok bool) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 || len(parts[0]) < 1 || len(parts[0]) > 2 || len(parts[1]) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}
