package recurrence

import (
	"time"

	"recurio/internal/model"
)

// weeklyScanDays bounds the day-by-day weekly search.
const weeklyScanDays = 370

// ComputeNext returns the occurrence following anchor under rule.
//
// The result always has the anchor's granularity unless the rule sets a time
// of day, in which case it is an instant. It is strictly later than
// anchor+1 minute and strictly later than now: an arithmetic result that is
// already past is moved to now+1 minute (instants) or to the day after now
// (date-only values). A zero anchor is treated as now.
func ComputeNext(anchor Date, rule model.Rule, now time.Time) Date {
	if anchor.IsZero() {
		anchor = At(now)
	}
	eff := Effective(rule)

	var next Date
	switch eff.Frequency {
	case model.FrequencyWeekly:
		next = nextWeekly(anchor, eff.ByWeekday, eff.Interval)
	case model.FrequencyMonthly:
		next = anchor.addMonths(eff.Interval)
	case model.FrequencyYearly:
		next = anchor.addYears(eff.Interval)
	default:
		next = anchor.addDays(eff.Interval)
	}

	next = withTimeOfDay(next, eff.TimeOfDay)
	return enforceFloors(anchor, next, now)
}

// nextWeekly scans the days after anchor for one whose weekday is allowed
// and whose distance in whole weeks from anchor is a multiple of interval.
// An empty set means the anchor's own weekday.
func nextWeekly(anchor Date, days []model.Weekday, interval int) Date {
	allowed := make(map[time.Weekday]bool, 7)
	for _, d := range days {
		if i := d.Index(); i >= 0 {
			allowed[time.Weekday(i)] = true
		}
	}
	if len(allowed) == 0 {
		allowed[anchor.Time.Weekday()] = true
	}

	for i := 1; i <= weeklyScanDays; i++ {
		cand := anchor.addDays(i)
		if !allowed[cand.Time.Weekday()] {
			continue
		}
		if (i/7)%interval == 0 {
			return cand
		}
	}
	return anchor.addDays(7 * interval)
}

func withTimeOfDay(d Date, tod string) Date {
	h, m, ok := model.ParseTimeOfDay(tod)
	if !ok {
		return d
	}
	t := d.Time
	loc := t.Location()
	if d.DateOnly {
		loc = time.UTC
	}
	return Date{Time: time.Date(t.Year(), t.Month(), t.Day(), h, m, 0, 0, loc)}
}

func enforceFloors(anchor, next Date, now time.Time) Date {
	if next.DateOnly {
		if !next.After(anchor) {
			next = anchor.addDays(1)
		}
		if tomorrow := today(now).addDays(1); next.Time.Before(tomorrow.Time) {
			next = tomorrow
		}
		return next
	}

	floor := anchor.Time.Add(time.Minute)
	if !next.Time.After(floor) {
		next = Date{Time: floor.Add(time.Minute)}
	}
	if !next.Time.After(now) {
		next = Date{Time: now.Add(time.Minute).Truncate(time.Second).In(next.Time.Location())}
	}
	return next
}
