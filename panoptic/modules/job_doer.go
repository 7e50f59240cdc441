package modules

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/panoptic"
	"github.com/magicjudges/announcer/utils"
	Logger "github.com/magicjudges/announcer/utils/log"
)

// JobDoer execute the StageJob with customized logic. We create this
// abstraction so that we could inject different JobDoer implementation into
// scheduler for the easy of testing and debugging.
type JobDoer interface {
	// Performs one pass of the job and returns its result.
	Do(ctx context.Context, job *StageJob, force bool) (model.StageResult, error)
}

// StageJobDoer runs the stage and publishes a report before and after the
// pass.
type StageJobDoer struct {
	EventBus *gochannel.GoChannel
	Now      utils.Clock
}

func NewStageJobDoer(e *gochannel.GoChannel) *StageJobDoer {
	return &StageJobDoer{
		EventBus: e,
		Now:      utils.UTCNow,
	}
}

func (d *StageJobDoer) publish(report panoptic.StageReport) {
	data, err := json.Marshal(report)
	if err != nil {
		Logger.Log.Errorf("cannot encode report of stage %s: %s", report.Stage, err)
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := d.EventBus.Publish(panoptic.TOPIC_STAGE_REPORT, msg); err != nil {
		Logger.Log.Errorf("cannot publish report of stage %s: %s", report.Stage, err)
	}
}

func (d *StageJobDoer) Do(ctx context.Context, job *StageJob, force bool) (result model.StageResult, err error) {
	job.pass.Lock()
	defer job.pass.Unlock()

	startedAt := d.Now()
	runCount, nextRun := job.start(startedAt)
	defer job.finish()

	report := panoptic.StageReport{
		Stage:     job.Name(),
		Phase:     panoptic.PhaseStarted,
		Forced:    force,
		StartedAt: startedAt,
		NextRun:   &nextRun,
		RunCount:  runCount,
	}
	d.publish(report)

	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("stage %s panicked: %v", job.Name(), r)
		}
		finishedAt := d.Now()
		report.Phase = panoptic.PhaseFinished
		report.FinishedAt = &finishedAt
		report.Result = &result
		if err != nil {
			report.Error = err.Error()
		}
		d.publish(report)

		fields := logrus.Fields{
			"stage":     job.Name(),
			"forced":    force,
			"processed": result.Processed,
			"created":   result.Created,
			"skipped":   result.Skipped,
			"failed":    result.Failed,
			"took":      finishedAt.Sub(startedAt).String(),
		}
		if err != nil {
			Logger.Log.WithFields(fields).Errorf("stage pass failed: %s", err)
		} else {
			Logger.Log.WithFields(fields).Info("stage pass finished")
		}
	}()

	result, err = job.stage.Run(ctx, force)
	result.Stage = job.Name()
	return result, err
}

// PrinterJobDoer only logs the job, for dry runs.
type PrinterJobDoer struct{}

func (d *PrinterJobDoer) Do(ctx context.Context, job *StageJob, force bool) (model.StageResult, error) {
	job.pass.Lock()
	defer job.pass.Unlock()
	job.start(time.Now().UTC())
	defer job.finish()
	Logger.Log.Infof("would run stage %s (force=%t)", job.Name(), force)
	return model.StageResult{Stage: job.Name()}, nil
}
