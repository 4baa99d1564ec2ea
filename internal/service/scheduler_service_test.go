package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBuildDailySpec(t *testing.T) {
	spec, err := buildDailySpec("09:05")
	require.NoError(t, err)
	assert.Equal(t, "0 5 9 * * *", spec)

	_, err = buildDailySpec("24:00")
	assert.Error(t, err)
	_, err = buildDailySpec("nine")
	assert.Error(t, err)
}

func TestSchedulerRegistersJobs(t *testing.T) {
	s := NewSchedulerService(time.UTC, zap.NewNop())

	_, err := s.ScheduleDaily("21:00", "report", func() {})
	require.NoError(t, err)
	_, err = s.ScheduleInterval(1500*time.Millisecond, "reminders", func() {})
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	_, err = s.ScheduleInterval(0, "broken", func() {})
	assert.Error(t, err)
	_, err = s.ScheduleDaily("7pm", "broken", func() {})
	assert.Error(t, err)
	assert.Equal(t, 2, s.Entries())
}

func TestSchedulerRunsIntervalJob(t *testing.T) {
	s := NewSchedulerService(time.UTC, zap.NewNop())
	ran := make(chan struct{}, 1)
	_, err := s.ScheduleInterval(time.Second, "tick", func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("interval job did not run")
	}
}
