package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/voice-campaign-engine/internal/domain"
)

func mondayRules() domain.ScheduleRules {
	return domain.ScheduleRules{
		Days:      []string{"monday"},
		StartTime: "09:00",
		EndTime:   "17:00",
	}
}

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

func TestNextValidBeforeWindowOpens(t *testing.T) {
	loc := newYork(t)
	// Monday 2024-01-15 08:00 ET, one hour before the window opens.
	from := time.Date(2024, 1, 15, 8, 0, 0, 0, loc)

	got, ok := NextValid(mondayRules(), "America/New_York", from)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 1, 15, 9, 0, 0, 0, loc)), "rolls forward to the window open")
	assert.Equal(t, time.UTC, got.Location(), "results are reported in UTC")
}

func TestNextValidInsideWindow(t *testing.T) {
	loc := newYork(t)
	from := time.Date(2024, 1, 15, 10, 30, 0, 0, loc)

	got, ok := NextValid(mondayRules(), "America/New_York", from)
	require.True(t, ok)
	assert.True(t, got.Equal(from), "an instant inside the window maps to itself")
}

func TestNextValidAfterWindowRollsToNextWeek(t *testing.T) {
	loc := newYork(t)
	from := time.Date(2024, 1, 15, 18, 0, 0, 0, loc)

	got, ok := NextValid(mondayRules(), "America/New_York", from)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 1, 22, 9, 0, 0, 0, loc)))
}

func TestNextValidSkipsToPermittedWeekday(t *testing.T) {
	loc := newYork(t)
	rules := domain.ScheduleRules{Days: []string{"wednesday"}, StartTime: "09:00", EndTime: "17:00"}
	from := time.Date(2024, 1, 15, 10, 0, 0, 0, loc) // Monday

	got, ok := NextValid(rules, "America/New_York", from)
	require.True(t, ok)
	assert.True(t, got.Equal(time.Date(2024, 1, 17, 9, 0, 0, 0, loc)))
}

func TestNextValidSingleInstantWindow(t *testing.T) {
	rules := domain.ScheduleRules{Days: []string{"monday"}, StartTime: "09:00", EndTime: "09:00"}

	exact := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	got, ok := NextValid(rules, "UTC", exact)
	require.True(t, ok)
	assert.True(t, got.Equal(exact))

	after, ok := NextValid(rules, "UTC", exact.Add(time.Second))
	require.True(t, ok)
	assert.True(t, after.Equal(exact.AddDate(0, 0, 7)), "past the instant the next week's slot is returned")
}

func TestNextValidResultSatisfiesRules(t *testing.T) {
	loc := newYork(t)
	rules := domain.ScheduleRules{Days: []string{"Tuesday", "friday"}, StartTime: "08:30", EndTime: "12:00"}

	from := time.Date(2024, 3, 9, 23, 45, 0, 0, time.UTC) // Saturday
	got, ok := NextValid(rules, "America/New_York", from)
	require.True(t, ok)
	require.False(t, got.Before(from))

	local := got.In(loc)
	assert.Equal(t, time.Tuesday, local.Weekday())
	minute := local.Hour()*60 + local.Minute()
	assert.GreaterOrEqual(t, minute, 8*60+30)
	assert.LessOrEqual(t, minute, 12*60)
}

func TestNextValidRejectsMalformedRules(t *testing.T) {
	cases := map[string]domain.ScheduleRules{
		"no days":          {Days: nil, StartTime: "09:00", EndTime: "17:00"},
		"unknown weekday":  {Days: []string{"moonday"}, StartTime: "09:00", EndTime: "17:00"},
		"duplicate day":    {Days: []string{"monday", "Monday"}, StartTime: "09:00", EndTime: "17:00"},
		"bad time format":  {Days: []string{"monday"}, StartTime: "9:00", EndTime: "17:00"},
		"hour out of range": {Days: []string{"monday"}, StartTime: "24:00", EndTime: "17:00"},
		"crosses midnight": {Days: []string{"monday"}, StartTime: "22:00", EndTime: "02:00"},
	}

	for name, rules := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := NextValid(rules, "UTC", time.Now())
			assert.False(t, ok)
		})
	}
}

func TestNextValidRejectsUnknownTimeZone(t *testing.T) {
	_, ok := NextValid(mondayRules(), "Mars/Olympus_Mons", time.Now())
	assert.False(t, ok)
}
