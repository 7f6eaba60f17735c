// Package store persists the run ledger: runs, per-threshold summaries and
// composite scores.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catchment-cli/internal/model"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for catchment runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, planPath string, datasets int) (*model.Run, error)
	FinishRun(ctx context.Context, runID string, status model.RunStatus, failed int) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Results
	SaveThreshold(ctx context.Context, summary model.ThresholdSummary) error
	ListThresholds(ctx context.Context, runID string) ([]model.ThresholdSummary, error)
	SaveScores(ctx context.Context, runID string, scores []model.DatasetScore) error
	ListScores(ctx context.Context, runID, dataset string) ([]model.DatasetScore, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Nop is a Store that records nothing, used when the ledger is disabled.
type Nop struct{}

var _ Store = Nop{}

func (Nop) CreateRun(_ context.Context, planPath string, datasets int) (*model.Run, error) {
	return &model.Run{PlanPath: planPath, Datasets: datasets, Status: model.RunStatusRunning, CreatedAt: time.Now().UTC()}, nil
}
func (Nop) FinishRun(context.Context, string, model.RunStatus, int) error { return nil }
func (Nop) GetRun(context.Context, string) (*model.Run, error)           { return nil, ErrNotFound }
func (Nop) ListRuns(context.Context, RunFilter) ([]model.Run, error)     { return nil, nil }
func (Nop) SaveThreshold(context.Context, model.ThresholdSummary) error  { return nil }
func (Nop) ListThresholds(context.Context, string) ([]model.ThresholdSummary, error) {
	return nil, nil
}
func (Nop) SaveScores(context.Context, string, []model.DatasetScore) error { return nil }
func (Nop) ListScores(context.Context, string, string) ([]model.DatasetScore, error) {
	return nil, nil
}
func (Nop) Migrate(context.Context) error { return nil }
func (Nop) Close() error                  { return nil }
