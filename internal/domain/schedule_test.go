package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleRulesCompile(t *testing.T) {
	rules := ScheduleRules{
		Days:      []string{"Monday", "WEDNESDAY", "friday"},
		StartTime: "09:30",
		EndTime:   "17:00",
	}

	compiled, err := rules.Compile()
	require.NoError(t, err)
	assert.Equal(t, 9*60+30, compiled.Start)
	assert.Equal(t, 17*60, compiled.End)
	assert.Equal(t, map[time.Weekday]bool{
		time.Monday:    true,
		time.Wednesday: true,
		time.Friday:    true,
	}, compiled.Weekdays)
}

func TestScheduleRulesCompileFailures(t *testing.T) {
	cases := []ScheduleRules{
		{Days: nil, StartTime: "09:00", EndTime: "17:00"},
		{Days: []string{"funday"}, StartTime: "09:00", EndTime: "17:00"},
		{Days: []string{"friday", "Friday"}, StartTime: "09:00", EndTime: "17:00"},
		{Days: []string{"friday"}, StartTime: "09:60", EndTime: "17:00"},
		{Days: []string{"friday"}, StartTime: "0900", EndTime: "17:00"},
		{Days: []string{"friday"}, StartTime: "17:00", EndTime: "09:00"},
	}

	for _, rules := range cases {
		_, err := rules.Compile()
		assert.Error(t, err, "rules %+v", rules)
	}
}
