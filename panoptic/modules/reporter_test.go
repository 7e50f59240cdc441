package modules

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/panoptic"
)

type metricCall struct {
	Kind  string
	Name  string
	Value int64
	Tags  []string
}

type fakeMetrics struct {
	m     sync.Mutex
	calls []metricCall
}

func (f *fakeMetrics) Incr(name string, tags []string, rate float64) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls = append(f.calls, metricCall{"incr", name, 1, tags})
	return nil
}

func (f *fakeMetrics) Count(name string, value int64, tags []string, rate float64) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls = append(f.calls, metricCall{"count", name, value, tags})
	return nil
}

func (f *fakeMetrics) Timing(name string, value time.Duration, tags []string, rate float64) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls = append(f.calls, metricCall{"timing", name, int64(value / time.Millisecond), tags})
	return nil
}

func (f *fakeMetrics) Calls() []metricCall {
	f.m.Lock()
	defer f.m.Unlock()
	return append([]metricCall(nil), f.calls...)
}

func TestReportMetrics(t *testing.T) {
	finished := fixedNow.Add(1500 * time.Millisecond)
	metrics := &fakeMetrics{}
	ReportMetrics(panoptic.StageReport{
		Stage:      "deliver_messages",
		Phase:      panoptic.PhaseFinished,
		StartedAt:  fixedNow,
		FinishedAt: &finished,
		Result:     &model.StageResult{Created: 3, Failed: 1},
		Error:      "",
	}, metrics)

	assert.ElementsMatch(t, []metricCall{
		{"incr", panoptic.DDOG_STAGE_RUN_COUNTER, 1, []string{"stage:deliver_messages", "state:ok"}},
		{"timing", panoptic.DDOG_STAGE_DURATION, 1500, []string{"stage:deliver_messages", "state:ok"}},
		{"count", panoptic.DDOG_STAGE_ITEM_COUNTER, 3, []string{"stage:deliver_messages", "outcome:created"}},
		{"count", panoptic.DDOG_STAGE_ITEM_COUNTER, 1, []string{"stage:deliver_messages", "outcome:failed"}},
	}, metrics.Calls())

	// Start reports and a disabled client send nothing.
	metrics = &fakeMetrics{}
	ReportMetrics(panoptic.StageReport{Stage: "x", Phase: panoptic.PhaseStarted}, metrics)
	assert.Empty(t, metrics.Calls())
	ReportMetrics(panoptic.StageReport{Stage: "x", Phase: panoptic.PhaseFinished}, nil)
}

func TestReporter_UpdatesStatusStore(t *testing.T) {
	eventbus := newEventBus()
	store := panoptic.NewMemoryStatusStore()
	metrics := &fakeMetrics{}
	reporter := NewReporter(ReporterConfig{Name: "reporter"}, metrics, store, eventbus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reporter.RunModule(ctx)

	stage := newCountingStage("route_announcements")
	job, err := NewStageJob(stage, "@every 1m")
	require.Nil(t, err)
	doer := NewStageJobDoer(eventbus)

	// Reports published before the reporter subscribed are dropped, so run
	// passes until one is recorded.
	require.Eventually(t, func() bool {
		_, err := doer.Do(ctx, job, false)
		assert.Nil(t, err)
		status, ok, err := store.Get(ctx, "route_announcements")
		return err == nil && ok && !status.Running && status.LastResult != nil
	}, 5*time.Second, 20*time.Millisecond)

	status, _, err := store.Get(ctx, "route_announcements")
	require.Nil(t, err)
	assert.GreaterOrEqual(t, status.RunCount, 1)
	assert.LessOrEqual(t, status.RunCount, job.RunCount())
	assert.Equal(t, 1, status.LastResult.Created)
	require.NotNil(t, status.NextRun)
	assert.NotEmpty(t, metrics.Calls())
}
