package recurrence

import (
	"strconv"
	"strings"

	"recurio/internal/model"
)

// PartialRule holds whatever a raw override string specified. Nil or empty
// fields were absent or malformed.
type PartialRule struct {
	Frequency *model.Frequency
	Interval  *int
	ByWeekday []model.Weekday
}

// Empty reports whether nothing usable was parsed.
func (p PartialRule) Empty() bool {
	return p.Frequency == nil && p.Interval == nil && len(p.ByWeekday) == 0
}

// ParseOverride reads the FREQ, INTERVAL and BYDAY parts of a
// "KEY=VALUE;KEY=VALUE" recurrence string. Unknown keys and malformed pairs
// are skipped one by one; the parse never fails as a whole.
func ParseOverride(raw string) PartialRule {
	var out PartialRule
	raw = strings.TrimSpace(raw)
	if len(raw) >= 6 && strings.EqualFold(raw[:6], "RRULE:") {
		raw = raw[6:]
	}

	for _, part := range strings.Split(raw, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.ToUpper(strings.TrimSpace(value))
		if key == "" || value == "" {
			continue
		}

		switch key {
		case "FREQ":
			if f, ok := model.ParseFrequency(value); ok && f != model.FrequencyCustom {
				out.Frequency = &f
			}
		case "INTERVAL":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				out.Interval = &n
			}
		case "BYDAY":
			var days []model.Weekday
			for _, code := range strings.Split(value, ",") {
				// RFC ordinals such as +1MO or -1FR keep only the weekday.
				code = strings.TrimLeft(strings.TrimSpace(code), "+-0123456789")
				if w, ok := model.ParseWeekday(code); ok {
					days = append(days, w)
				}
			}
			if days = model.NormalizeWeekdays(days); len(days) > 0 {
				out.ByWeekday = days
			}
		}
	}
	return out
}

// Effective returns the normalized rule whose frequency, interval and
// weekdays are what the calculator should use: the parsed override merged
// over the structured fields. A custom rule that still has no concrete
// frequency repeats daily.
func Effective(rule model.Rule) model.Rule {
	rule = rule.Normalize()
	if rule.CustomOverride != "" {
		p := ParseOverride(rule.CustomOverride)
		if p.Frequency != nil {
			rule.Frequency = *p.Frequency
		}
		if p.Interval != nil {
			rule.Interval = *p.Interval
		}
		if len(p.ByWeekday) > 0 {
			rule.ByWeekday = p.ByWeekday
		}
	}
	if rule.Frequency == model.FrequencyCustom {
		rule.Frequency = model.FrequencyDaily
	}
	return rule
}
