package modules

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/utils"
	Logger "github.com/magicjudges/announcer/utils/log"
)

var ErrUnknownStage = errors.New("unknown stage")

type SchedulerConfig struct {
	// Name of the scheduler.
	Name string
}

// Scheduler runs every StageJob on its cron schedule and offers a run-now
// entry point.
type Scheduler struct {
	m sync.RWMutex

	Config SchedulerConfig

	Jobs []*StageJob

	Doer JobDoer

	Now utils.Clock

	cron *cron.Cron
}

// Return a new instance of Scheduler.
func NewScheduler(config SchedulerConfig, jobs []*StageJob, doer JobDoer) *Scheduler {
	return &Scheduler{
		Config: config,
		Jobs:   jobs,
		Doer:   doer,
		Now:    utils.UTCNow,
	}
}

func (s *Scheduler) Job(name string) (*StageJob, bool) {
	s.m.RLock()
	defer s.m.RUnlock()
	for _, j := range s.Jobs {
		if j.Name() == name {
			return j, true
		}
	}
	return nil, false
}

// RunNow runs a stage synchronously, waiting first for a pass already in
// flight.
func (s *Scheduler) RunNow(ctx context.Context, stage string, force bool) (model.StageResult, error) {
	job, ok := s.Job(stage)
	if !ok {
		return model.StageResult{Stage: stage}, errors.Wrapf(ErrUnknownStage, "%q", stage)
	}
	return s.Doer.Do(ctx, job, force)
}

func (s *Scheduler) RunModule(ctx context.Context) error {
	c := cron.New(
		cron.WithLocation(s.Now().Location()),
		cron.WithChain(
			cron.Recover(cron.PrintfLogger(Logger.Log)),
			cron.SkipIfStillRunning(cron.PrintfLogger(Logger.Log)),
		),
	)

	s.m.RLock()
	now := s.Now()
	for _, job := range s.Jobs {
		job := job
		c.Schedule(job.schedule, cron.FuncJob(func() {
			if _, err := s.Doer.Do(ctx, job, false); err != nil {
				Logger.Log.Errorf("scheduled pass of %s failed: %s", job.Name(), err)
			}
			job.ScheduleNext(s.Now())
		}))
		job.ScheduleNext(now)
		Logger.Log.Infof("stage %s scheduled with %q, next run %s", job.Name(), job.spec, job.NextRun())
	}
	s.m.RUnlock()

	s.m.Lock()
	s.cron = c
	s.m.Unlock()

	c.Start()
	<-ctx.Done()
	// Wait for running passes to return, they observe the same context.
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) Name() string {
	return s.Config.Name
}

func (s *Scheduler) Shutdown() {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
