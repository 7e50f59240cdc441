package modules

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"

	"github.com/magicjudges/announcer/panoptic"
	Logger "github.com/magicjudges/announcer/utils/log"
)

// Metrics is the part of the DogStatsD client the reporter uses.
type Metrics interface {
	Incr(name string, tags []string, rate float64) error
	Count(name string, value int64, tags []string, rate float64) error
	Timing(name string, value time.Duration, tags []string, rate float64) error
}

type ReporterConfig struct {
	Name string
}

// Reporter's job is to listen to stage reports, keep the status store up to
// date and send metrics to Datadog for monitoring purpose.
type Reporter struct {
	Config ReporterConfig

	// Nil disables metrics.
	Statsd Metrics

	Store panoptic.StatusStore

	EventBus *gochannel.GoChannel
}

func NewReporter(config ReporterConfig, statsd Metrics, store panoptic.StatusStore, e *gochannel.GoChannel) *Reporter {
	return &Reporter{
		Config:   config,
		Statsd:   statsd,
		Store:    store,
		EventBus: e,
	}
}

// ReportMetrics sends the counters of a finished pass.
func ReportMetrics(report panoptic.StageReport, statsd Metrics) {
	if statsd == nil || report.Phase != panoptic.PhaseFinished {
		return
	}
	state := "ok"
	if report.Error != "" {
		state = "error"
	}
	tags := []string{"stage:" + report.Stage, "state:" + state}
	if err := statsd.Incr(panoptic.DDOG_STAGE_RUN_COUNTER, tags, 1); err != nil {
		Logger.Log.Infoln("cannot report stage run")
	}
	if report.FinishedAt != nil {
		statsd.Timing(panoptic.DDOG_STAGE_DURATION, report.FinishedAt.Sub(report.StartedAt), tags, 1)
	}
	if report.Result == nil {
		return
	}
	for outcome, n := range map[string]int{
		"created": report.Result.Created,
		"skipped": report.Result.Skipped,
		"failed":  report.Result.Failed,
	} {
		if n == 0 {
			continue
		}
		statsd.Count(panoptic.DDOG_STAGE_ITEM_COUNTER, int64(n), []string{"stage:" + report.Stage, "outcome:" + outcome}, 1)
	}
}

func (r *Reporter) record(ctx context.Context, report panoptic.StageReport) error {
	previous, _, err := r.Store.Get(ctx, report.Stage)
	if err != nil {
		return errors.Wrap(err, "cannot read stage status")
	}
	return r.Store.Put(ctx, report.Apply(previous))
}

func (r *Reporter) ProcessStageReports(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	messages, err := r.EventBus.Subscribe(ctx, panoptic.TOPIC_STAGE_REPORT)
	if err != nil {
		return err
	}

	for msg := range messages {
		msg.Ack()

		var report panoptic.StageReport
		if err := json.Unmarshal(msg.Payload, &report); err != nil {
			Logger.Log.Errorf("drop malformed stage report: %s", err)
			continue
		}
		if err := r.record(ctx, report); err != nil {
			Logger.Log.Errorf("cannot store status of %s: %s", report.Stage, err)
		}
		ReportMetrics(report, r.Statsd)
	}

	return nil
}

func (r *Reporter) RunModule(ctx context.Context) error {
	return r.ProcessStageReports(ctx)
}

func (r *Reporter) Name() string {
	return r.Config.Name
}

func (r *Reporter) Shutdown() {}
