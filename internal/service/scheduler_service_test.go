package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("03:05")
	require.NoError(t, err)
	assert.Equal(t, "0 5 3 * * *", spec)

	for _, bad := range []string{"", "3", "24:00", "12:60", "ab:cd"} {
		_, err := buildDailySpec(bad)
		assert.Error(t, err, bad)
	}
}

func TestSchedulerService_Register(t *testing.T) {
	s := NewSchedulerService(time.UTC)

	_, err := s.ScheduleInterval(0, func() {})
	assert.Error(t, err)

	_, err = s.ScheduleInterval(15*time.Minute, func() {})
	require.NoError(t, err)
	_, err = s.ScheduleDaily("04:00", func() {})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Entries())
	s.Start()
	s.Stop()
}
