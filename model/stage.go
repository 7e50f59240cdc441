package model

import "time"

// StageResult summarizes one pass of a pipeline stage.
type StageResult struct {
	Stage     string   `json:"stage"`
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// maxStageErrors caps how many error strings a result keeps for the status
// view.
const maxStageErrors = 20

func (r *StageResult) AddError(err error) {
	r.Failed++
	if len(r.Errors) < maxStageErrors {
		r.Errors = append(r.Errors, err.Error())
	}
}

// Merge folds a partial result computed by a worker into r.
func (r *StageResult) Merge(o StageResult) {
	r.Processed += o.Processed
	r.Created += o.Created
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	for _, e := range o.Errors {
		if len(r.Errors) >= maxStageErrors {
			break
		}
		r.Errors = append(r.Errors, e)
	}
}

/*
StageStatus is what the status view shows for one stage. It lives in the
stage status store, not in the database.

LastRun, NextRun: start of the latest pass and the next scheduled one
RunCount: passes since the store was created
Running: a pass is in flight
LastResult, LastError: outcome of the latest finished pass
*/
type StageStatus struct {
	Stage      string       `json:"stage"`
	LastRun    *time.Time   `json:"last_run,omitempty"`
	NextRun    *time.Time   `json:"next_run,omitempty"`
	RunCount   int          `json:"run_count"`
	Running    bool         `json:"running"`
	LastResult *StageResult `json:"last_result,omitempty"`
	LastError  string       `json:"last_error,omitempty"`
}
