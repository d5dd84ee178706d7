package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorNext(t *testing.T) {
	e, err := New("0 16 * * 5", "UTC", 5*time.Hour)
	require.NoError(t, err)

	friday := func(h, m int) time.Time { return time.Date(2026, 10, 16, h, m, 0, 0, time.UTC) }
	thisWeek := friday(16, 0)
	nextWeek := thisWeek.AddDate(0, 0, 7)

	tests := []struct {
		name string
		now  time.Time
		done bool
		want time.Time
	}{
		{name: "before start", now: friday(15, 0), want: thisWeek},
		{name: "at start", now: thisWeek, want: thisWeek},
		{name: "running late", now: friday(17, 30), want: thisWeek},
		{name: "late but done", now: friday(17, 30), done: true, want: nextWeek},
		{name: "past buffer", now: friday(21, 30), want: nextWeek},
		{name: "midweek", now: time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC), want: nextWeek},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Next(tt.now, tt.done)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestEstimatorTimezone(t *testing.T) {
	e, err := New("0 16 * * 5", "America/Vancouver", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultLateBuffer, e.LateBuffer())

	// 16:00 PDT is 23:00 UTC.
	got := e.Next(time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC), false)
	assert.True(t, got.Equal(time.Date(2026, 10, 16, 23, 0, 0, 0, time.UTC)), "got %s", got)
}

func TestEstimatorRejectsBadInput(t *testing.T) {
	_, err := New("", "UTC", 0)
	assert.Error(t, err)
	_, err = New("not a cron", "UTC", 0)
	assert.Error(t, err)
	_, err = New("@weekly", "Mars/Olympus", 0)
	assert.Error(t, err)
}
