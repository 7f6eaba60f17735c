package model

import "time"

// RunStatus represents the current state of a catchment run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one invocation of a plan, recorded in the run ledger.
type Run struct {
	ID         string     `json:"id"`
	PlanPath   string     `json:"plan_path"`
	Status     RunStatus  `json:"status"`
	Datasets   int        `json:"datasets"`
	Failed     int        `json:"failed"`
	CreatedAt  time.Time  `json:"created_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ThresholdSummary records the outcome of one dataset/threshold unit.
type ThresholdSummary struct {
	RunID               string  `json:"run_id"`
	Dataset             string  `json:"dataset"`
	Label               string  `json:"label"`
	Threshold           float64 `json:"threshold"`
	RetainedRows        int     `json:"retained_rows"`
	Origins             int     `json:"origins"`
	Facilities          int     `json:"facilities"`
	UndefinedRatios     int     `json:"undefined_ratios"`
	UnmatchedOrigins    int     `json:"unmatched_origins"`
	UnmatchedFacilities int     `json:"unmatched_facilities"`
	Error               string  `json:"error,omitempty"`
}

// DatasetScore is a composite score stored against a run and dataset.
type DatasetScore struct {
	Dataset string `json:"dataset"`
	CompositeScore
	// X and Y are set when the origin matched a point with geometry.
	X *float64 `json:"x,omitempty"`
	Y *float64 `json:"y,omitempty"`
}
