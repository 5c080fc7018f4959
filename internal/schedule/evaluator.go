// Package schedule computes the next instant at which a campaign is allowed
// to place a call, given its recurring business-hours rules.
package schedule

import (
	"time"

	"github.com/acme/voice-campaign-engine/internal/domain"
)

// lookaheadDays bounds the search; with at least one valid weekday a slot is
// always found within a week, so running out means the rules are unusable.
const lookaheadDays = 14

// NextValid returns the earliest UTC instant at or after from that falls
// within one of the rule windows on a permitted weekday, in the given IANA
// time zone. It returns false when the rules are malformed, the zone is
// unknown, or no slot exists within 14 calendar days.
//
// A window with start == end admits only the exact instant. Windows never
// cross midnight (validation rejects them). DST transitions are resolved by
// the tz database mapping as-is, with no correction for skipped or doubled
// wall-clock times.
func NextValid(rules domain.ScheduleRules, timeZone string, from time.Time) (time.Time, bool) {
	compiled, err := rules.Compile()
	if err != nil {
		return time.Time{}, false
	}
	return nextValidCompiled(compiled, timeZone, from)
}

func nextValidCompiled(rules domain.CompiledRules, timeZone string, from time.Time) (time.Time, bool) {
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return time.Time{}, false
	}

	local := from.In(loc)
	for i := 0; i < lookaheadDays; i++ {
		day := local.AddDate(0, 0, i)
		if !rules.Weekdays[day.Weekday()] {
			continue
		}

		windowStart := atMinute(day, rules.Start, loc)
		windowEnd := atMinute(day, rules.End, loc)

		candidate := local
		if i > 0 {
			candidate = windowStart
		}

		switch {
		case candidate.Before(windowStart):
			return windowStart.UTC(), true
		case !candidate.After(windowEnd):
			return candidate.UTC(), true
		}
		// past today's window, try the next day
	}

	return time.Time{}, false
}

func atMinute(day time.Time, minuteOfDay int, loc *time.Location) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minuteOfDay/60, minuteOfDay%60, 0, 0, loc)
}
