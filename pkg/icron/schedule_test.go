package icron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTriggerInfo_Hourly(t *testing.T) {
	ref := time.Date(2026, 5, 4, 10, 20, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 * * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC), info.Last)
	assert.Equal(t, 20*time.Minute, info.TimeSinceLast)
	assert.Equal(t, 40*time.Minute, info.TimeUntilNext)
}

func TestGetTriggerInfo_Daily(t *testing.T) {
	ref := time.Date(2026, 5, 4, 1, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("30 3 * * *", ref)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 5, 4, 3, 30, 0, 0, time.UTC), info.Next)
	assert.Equal(t, time.Date(2026, 5, 3, 3, 30, 0, 0, time.UTC), info.Last)
}

func TestGetTriggerInfo_FiringAtReference(t *testing.T) {
	ref := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	info, err := GetTriggerInfo("0 12 * * *", ref)
	require.NoError(t, err)
	assert.Equal(t, ref, info.Last)
	assert.Zero(t, info.TimeSinceLast)
}

func TestGetTriggerInfo_Invalid(t *testing.T) {
	_, err := GetTriggerInfo("not a schedule", time.Now())
	assert.Error(t, err)
}
