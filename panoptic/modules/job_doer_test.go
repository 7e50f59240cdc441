package modules

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/panoptic"
)

func TestStageJobDoer(t *testing.T) {
	eventbus := newEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := eventbus.Subscribe(ctx, panoptic.TOPIC_STAGE_REPORT)
	require.Nil(t, err)

	// Go channel receive and send cannot be in the same routine, otherwise it
	// will cause deadlock. Thus we need to asynchronously get back messages.
	reports := make(chan panoptic.StageReport, 2)
	go func() {
		for msg := range messages {
			var report panoptic.StageReport
			assert.Nil(t, json.Unmarshal(msg.Payload, &report))
			msg.Ack()
			reports <- report
		}
	}()

	stage := newCountingStage("route_announcements")
	job, err := NewStageJob(stage, "@every 1m")
	require.Nil(t, err)

	doer := NewStageJobDoer(eventbus)
	doer.Now = func() time.Time { return fixedNow }
	result, err := doer.Do(ctx, job, true)
	require.Nil(t, err)
	assert.Equal(t, model.StageResult{Stage: "route_announcements", Processed: 2, Created: 1, Skipped: 1}, result)
	assert.Equal(t, 1, job.RunCount())
	assert.False(t, job.Running())

	started := <-reports
	assert.Equal(t, panoptic.PhaseStarted, started.Phase)
	assert.True(t, started.Forced)
	assert.Equal(t, 1, started.RunCount)
	assert.Nil(t, started.Result)

	finished := <-reports
	assert.Equal(t, panoptic.PhaseFinished, finished.Phase)
	require.NotNil(t, finished.Result)
	assert.Equal(t, 1, finished.Result.Created)
	assert.Equal(t, "", finished.Error)
	require.NotNil(t, finished.NextRun)
	assert.True(t, fixedNow.Add(time.Minute).Equal(*finished.NextRun))
}

func TestStageJobDoer_ErrorReported(t *testing.T) {
	eventbus := newEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := eventbus.Subscribe(ctx, panoptic.TOPIC_STAGE_REPORT)
	require.Nil(t, err)
	reports := make(chan panoptic.StageReport, 2)
	go func() {
		for msg := range messages {
			var report panoptic.StageReport
			json.Unmarshal(msg.Payload, &report)
			msg.Ack()
			reports <- report
		}
	}()

	stage := newCountingStage("deliver_messages")
	stage.err = errors.New("database is locked")
	job, err := NewStageJob(stage, "@every 1m")
	require.Nil(t, err)

	_, err = NewStageJobDoer(eventbus).Do(ctx, job, false)
	assert.NotNil(t, err)

	<-reports
	finished := <-reports
	assert.Equal(t, "database is locked", finished.Error)
}

func TestStageJobDoer_NoSubscriber(t *testing.T) {
	job, err := NewStageJob(newCountingStage("x"), "@every 1m")
	require.Nil(t, err)

	_, err = NewStageJobDoer(newEventBus()).Do(context.Background(), job, false)
	assert.Nil(t, err)
	assert.Equal(t, 1, job.RunCount())
}

func TestPrinterJobDoer(t *testing.T) {
	stage := newCountingStage("x")
	job, err := NewStageJob(stage, "@every 1m")
	require.Nil(t, err)

	result, err := (&PrinterJobDoer{}).Do(context.Background(), job, false)
	require.Nil(t, err)
	assert.Equal(t, "x", result.Stage)
	assert.Equal(t, 0, stage.Runs())
	assert.Equal(t, 1, job.RunCount())
}
