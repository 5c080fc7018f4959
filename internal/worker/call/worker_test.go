package call

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/voice-campaign-engine/internal/domain"
)

func TestShouldRetry(t *testing.T) {
	// max_retries=2 allows exactly 3 placement attempts
	assert.True(t, shouldRetry(0, 2))
	assert.True(t, shouldRetry(1, 2))
	assert.False(t, shouldRetry(2, 2))

	// max_retries=0 means a single attempt
	assert.False(t, shouldRetry(0, 0))
}

func TestNextAttemptAtHonorsRetryDelay(t *testing.T) {
	rules := domain.ScheduleRules{
		Days:      []string{"monday"},
		StartTime: "09:00",
		EndTime:   "17:00",
	}

	// Monday 2024-01-15 10:00 UTC, inside the window. A 30-minute delay must
	// push the next attempt past it.
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	got := nextAttemptAt(rules, "UTC", now, 30*time.Minute)
	assert.True(t, got.Equal(now.Add(30*time.Minute)))
}

func TestNextAttemptAtRollsPastWindowEnd(t *testing.T) {
	rules := domain.ScheduleRules{
		Days:      []string{"monday"},
		StartTime: "09:00",
		EndTime:   "17:00",
	}

	// 16:50 plus a 30-minute delay leaves the window; the next Monday opens
	// at 09:00.
	now := time.Date(2024, 1, 15, 16, 50, 0, 0, time.UTC)
	got := nextAttemptAt(rules, "UTC", now, 30*time.Minute)
	require.Equal(t, time.Monday, got.Weekday())
	assert.True(t, got.Equal(time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC)))
}

func TestNextAttemptAtConcurrencyDenialUsesNow(t *testing.T) {
	rules := domain.ScheduleRules{
		Days:      []string{"monday"},
		StartTime: "09:00",
		EndTime:   "17:00",
	}

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	got := nextAttemptAt(rules, "UTC", now, 0)
	assert.True(t, got.Equal(now), "a denial inside the window reschedules to now")
}

func TestNextAttemptAtFallsBackOnMalformedRules(t *testing.T) {
	bad := domain.ScheduleRules{Days: nil, StartTime: "09:00", EndTime: "17:00"}

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	got := nextAttemptAt(bad, "UTC", now, 2*time.Minute)
	assert.True(t, got.Equal(now.Add(2*time.Minute)))

	got = nextAttemptAt(bad, "UTC", now, 0)
	assert.True(t, got.Equal(now.Add(time.Minute)), "zero delay still backs off")
}
