package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Schedule is a recurring business-hours window in an IANA time zone.
type Schedule struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TimeZone  string
	Rules     ScheduleRules
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScheduleRules is the typed form of the schedule_rules JSON column. It is
// decoded and validated once at the storage boundary; downstream code only
// sees the compiled form.
type ScheduleRules struct {
	Days            []string `json:"days"`
	StartTime       string   `json:"start_time"`
	EndTime         string   `json:"end_time"`
	ExcludeHolidays bool     `json:"exclude_holidays"`
}

// CompiledRules is a validated ScheduleRules ready for window arithmetic.
// Start and End are minutes since local midnight; Start == End denotes a
// single-instant window. Windows never cross midnight.
type CompiledRules struct {
	Weekdays map[time.Weekday]bool
	Start    int
	End      int
}

var timeOfDayRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Compile validates the rules and returns their compiled form. Weekday names
// are case-insensitive and must be distinct; times must be valid HH:MM
// 24-hour values.
func (r ScheduleRules) Compile() (CompiledRules, error) {
	if len(r.Days) == 0 {
		return CompiledRules{}, fmt.Errorf("schedule rules: days must not be empty")
	}

	weekdays := make(map[time.Weekday]bool, len(r.Days))
	for _, name := range r.Days {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return CompiledRules{}, fmt.Errorf("schedule rules: unknown weekday %q", name)
		}
		if weekdays[day] {
			return CompiledRules{}, fmt.Errorf("schedule rules: duplicate weekday %q", name)
		}
		weekdays[day] = true
	}

	start, err := parseMinuteOfDay(r.StartTime)
	if err != nil {
		return CompiledRules{}, fmt.Errorf("schedule rules: start_time: %w", err)
	}
	end, err := parseMinuteOfDay(r.EndTime)
	if err != nil {
		return CompiledRules{}, fmt.Errorf("schedule rules: end_time: %w", err)
	}
	if end < start {
		return CompiledRules{}, fmt.Errorf("schedule rules: window must not cross midnight")
	}

	return CompiledRules{Weekdays: weekdays, Start: start, End: end}, nil
}

func parseMinuteOfDay(value string) (int, error) {
	if !timeOfDayRe.MatchString(value) {
		return 0, fmt.Errorf("%q is not HH:MM", value)
	}
	hour, _ := strconv.Atoi(value[:2])
	minute, _ := strconv.Atoi(value[3:])
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("%q is not a valid 24-hour time", value)
	}
	return hour*60 + minute, nil
}
