package modules

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/magicjudges/announcer/panoptic"
)

// StageJob is the schedule of one stage. It is thread-safe, and its passes
// never overlap: a manual run waits for a scheduled one and the other way
// round.
type StageJob struct {
	m sync.RWMutex

	// Held for the whole duration of a pass.
	pass sync.Mutex

	stage panoptic.Stage

	spec     string
	schedule cron.Schedule

	// The last time this job is executed.
	lastRun time.Time

	// The next time this job should be executed.
	nextRun time.Time

	// How many passes this job ran.
	runCount int

	running bool
}

// NewStageJob parses spec, a standard cron line or a descriptor such as
// "@every 1m".
func NewStageJob(stage panoptic.Stage, spec string) (*StageJob, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid schedule %q for stage %s", spec, stage.Name())
	}
	return &StageJob{stage: stage, spec: spec, schedule: schedule}, nil
}

func (j *StageJob) Name() string {
	return j.stage.Name()
}

func (j *StageJob) HasRunBefore() bool {
	j.m.RLock()
	defer j.m.RUnlock()

	return !j.lastRun.IsZero()
}

func (j *StageJob) LastRun() time.Time {
	j.m.RLock()
	defer j.m.RUnlock()
	return j.lastRun
}

func (j *StageJob) NextRun() time.Time {
	j.m.RLock()
	defer j.m.RUnlock()
	return j.nextRun
}

func (j *StageJob) RunCount() int {
	j.m.RLock()
	defer j.m.RUnlock()
	return j.runCount
}

func (j *StageJob) Running() bool {
	j.m.RLock()
	defer j.m.RUnlock()
	return j.running
}

// ScheduleNext computes the next activation after now and records it.
func (j *StageJob) ScheduleNext(now time.Time) time.Time {
	j.m.Lock()
	defer j.m.Unlock()
	j.nextRun = j.schedule.Next(now)
	return j.nextRun
}

func (j *StageJob) DurationTillNextRun(now time.Time) time.Duration {
	j.m.RLock()
	defer j.m.RUnlock()
	if j.nextRun.IsZero() {
		return j.schedule.Next(now).Sub(now)
	}
	return j.nextRun.Sub(now)
}

// start marks the beginning of a pass. The caller holds pass.
func (j *StageJob) start(now time.Time) (runCount int, nextRun time.Time) {
	j.m.Lock()
	defer j.m.Unlock()
	j.lastRun = now
	j.runCount++
	j.running = true
	if !j.nextRun.After(now) {
		j.nextRun = j.schedule.Next(now)
	}
	return j.runCount, j.nextRun
}

func (j *StageJob) finish() {
	j.m.Lock()
	defer j.m.Unlock()
	j.running = false
}
