package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	minutes, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, minutes)
	assert.Equal(t, "09:30", FormatClock(minutes))

	_, err = ParseClock("25:00")
	assert.Error(t, err)
	_, err = ParseClock("nine")
	assert.Error(t, err)
}

func TestRegistrationWindowContains(t *testing.T) {
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 23, 59, 59, 0, time.UTC)
	window := RegistrationWindow{Start: start, End: end}

	assert.True(t, window.Contains(start))
	assert.True(t, window.Contains(end))
	assert.True(t, window.Contains(start.AddDate(0, 0, 15)))
	assert.False(t, window.Contains(start.Add(-time.Second)))
	assert.False(t, window.Contains(end.Add(time.Second)))
}
