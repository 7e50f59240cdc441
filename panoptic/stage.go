package panoptic

import (
	"context"
	"sync"
	"time"

	"github.com/magicjudges/announcer/model"
)

// Stage is one pipeline pass. Running it twice in a row is safe, a pass only
// does what the previous one left undone.
type Stage interface {
	Name() string
	Run(ctx context.Context, force bool) (model.StageResult, error)
}

// StatusStore keeps what the status view shows about each stage.
type StatusStore interface {
	Put(ctx context.Context, status model.StageStatus) error
	Get(ctx context.Context, stage string) (model.StageStatus, bool, error)
}

// StageReport is the event bus payload describing one pass.
type StageReport struct {
	Stage      string             `json:"stage"`
	Phase      ReportPhase        `json:"phase"`
	Forced     bool               `json:"forced"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	NextRun    *time.Time         `json:"next_run,omitempty"`
	RunCount   int                `json:"run_count"`
	Result     *model.StageResult `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// Apply folds the report into the previous status of its stage. Reports of
// an older pass, or the start of a pass already seen finishing, are ignored.
func (r StageReport) Apply(status model.StageStatus) model.StageStatus {
	if status.LastRun != nil {
		if r.StartedAt.Before(*status.LastRun) {
			return status
		}
		if r.StartedAt.Equal(*status.LastRun) && r.Phase == PhaseStarted && !status.Running {
			return status
		}
	}
	status.Stage = r.Stage
	startedAt := r.StartedAt
	status.LastRun = &startedAt
	if r.NextRun != nil {
		nextRun := *r.NextRun
		status.NextRun = &nextRun
	}
	status.RunCount = r.RunCount
	switch r.Phase {
	case PhaseStarted:
		status.Running = true
	case PhaseFinished:
		status.Running = false
		status.LastResult = r.Result
		status.LastError = r.Error
	}
	return status
}

// MemoryStatusStore is used when no Redis is configured.
type MemoryStatusStore struct {
	m        sync.RWMutex
	statuses map[string]model.StageStatus
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]model.StageStatus)}
}

func (s *MemoryStatusStore) Put(ctx context.Context, status model.StageStatus) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.statuses[status.Stage] = status
	return nil
}

func (s *MemoryStatusStore) Get(ctx context.Context, stage string) (model.StageStatus, bool, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	status, ok := s.statuses[stage]
	return status, ok, nil
}
