package modules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStageJob(t *testing.T) {
	job, err := NewStageJob(newCountingStage("fetch_announcements"), "@every 1m")
	require.Nil(t, err)
	assert.Equal(t, "fetch_announcements", job.Name())
	assert.False(t, job.HasRunBefore())
	assert.Equal(t, 0, job.RunCount())
	assert.Equal(t, time.Minute, job.DurationTillNextRun(fixedNow))

	_, err = NewStageJob(newCountingStage("x"), "every minute please")
	assert.NotNil(t, err)
}

func TestStageJob_ScheduleNext(t *testing.T) {
	job, err := NewStageJob(newCountingStage("x"), "*/5 * * * *")
	require.Nil(t, err)

	next := job.ScheduleNext(fixedNow.Add(time.Minute))
	assert.Equal(t, fixedNow.Add(5*time.Minute), next)
	assert.Equal(t, next, job.NextRun())
	assert.Equal(t, 4*time.Minute, job.DurationTillNextRun(fixedNow.Add(time.Minute)))
}

func TestStageJob_StartFinish(t *testing.T) {
	job, err := NewStageJob(newCountingStage("x"), "@every 1m")
	require.Nil(t, err)

	count, next := job.start(fixedNow)
	assert.Equal(t, 1, count)
	assert.Equal(t, fixedNow.Add(time.Minute), next)
	assert.True(t, job.Running())
	assert.True(t, job.HasRunBefore())
	assert.Equal(t, fixedNow, job.LastRun())

	job.finish()
	assert.False(t, job.Running())
}
