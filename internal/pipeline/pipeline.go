// Package pipeline executes a run plan: every dataset and threshold, their
// exports, the composite score and the run ledger entries.
package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catchment-cli/internal/catchment"
	"github.com/sells-group/catchment-cli/internal/export"
	"github.com/sells-group/catchment-cli/internal/ingest"
	"github.com/sells-group/catchment-cli/internal/model"
	"github.com/sells-group/catchment-cli/internal/plan"
	"github.com/sells-group/catchment-cli/internal/resilience"
	"github.com/sells-group/catchment-cli/internal/store"
)

// Options tunes plan execution.
type Options struct {
	DatasetLimit   int
	ThresholdLimit int
	Export         export.Options
}

// Pipeline runs plans against a run ledger.
type Pipeline struct {
	store store.Store
	opts  Options
}

// New creates a Pipeline. A nil store disables the ledger.
func New(st store.Store, opts Options) *Pipeline {
	if st == nil {
		st = store.Nop{}
	}
	return &Pipeline{store: st, opts: opts}
}

// DatasetReport is the outcome of one dataset.
type DatasetReport struct {
	Name            string
	Thresholds      []*catchment.Result
	Scores          []model.CompositeScore
	JoinedPoints    int
	UnmatchedPoints int
	Err             error
}

// Report is the outcome of a whole plan.
type Report struct {
	Run      *model.Run
	Datasets []DatasetReport
}

// Failed returns the number of datasets that did not complete.
func (r *Report) Failed() int {
	var n int
	for _, d := range r.Datasets {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Run executes every dataset of p. A failing dataset is recorded in the
// report and does not stop the others; the returned error is reserved for
// ledger failures and cancellation.
func (pl *Pipeline) Run(ctx context.Context, planPath string, p *plan.Plan) (*Report, error) {
	run, err := pl.store.CreateRun(ctx, planPath, len(p.Datasets))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	log := zap.L().With(zap.String("run_id", run.ID), zap.String("plan", planPath))
	log.Info("pipeline: starting run", zap.Int("datasets", len(p.Datasets)))

	report := &Report{Run: run, Datasets: make([]DatasetReport, len(p.Datasets))}

	g, gCtx := errgroup.WithContext(ctx)
	if pl.opts.DatasetLimit > 0 {
		g.SetLimit(pl.opts.DatasetLimit)
	}

	var succeeded, failed atomic.Int64
	for i, d := range p.Datasets {
		if gCtx.Err() != nil {
			report.Datasets[i] = DatasetReport{Name: d.Name, Err: gCtx.Err()}
			failed.Add(1)
			continue
		}
		g.Go(func() error {
			dr := pl.runDataset(gCtx, run.ID, p.Columns, d)
			report.Datasets[i] = dr
			if dr.Err != nil {
				failed.Add(1)
				log.Error("pipeline: dataset failed", zap.String("dataset", d.Name), zap.Error(dr.Err))
				return nil // other datasets continue
			}
			succeeded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	status := model.RunStatusComplete
	switch n := int(failed.Load()); {
	case n == len(p.Datasets):
		status = model.RunStatusFailed
	case n > 0:
		status = model.RunStatusPartial
	}
	// The ledger is closed out even when ctx was cancelled.
	if err := pl.store.FinishRun(context.WithoutCancel(ctx), run.ID, status, int(failed.Load())); err != nil {
		return report, eris.Wrap(err, "pipeline: finish run")
	}
	run.Status = status
	run.Failed = int(failed.Load())

	log.Info("pipeline: run complete",
		zap.String("status", string(status)),
		zap.Int64("succeeded", succeeded.Load()),
		zap.Int64("failed", failed.Load()),
	)
	if err := ctx.Err(); err != nil {
		return report, eris.Wrap(err, "pipeline: run cancelled")
	}
	return report, nil
}

func (pl *Pipeline) runDataset(ctx context.Context, runID string, cols ingest.Columns, d plan.Dataset) DatasetReport {
	dr := DatasetReport{Name: d.Name}
	log := zap.L().With(zap.String("run_id", runID), zap.String("dataset", d.Name))

	if err := checkSources(ctx, cols, d); err != nil {
		pl.recordFailure(ctx, runID, d.Name, err)
		dr.Err = err
		return dr
	}

	cache := newTableCache()
	sources := make([]catchment.Source, len(d.Thresholds))
	outputs := make(map[string]plan.Threshold, len(d.Thresholds))
	for i, th := range d.Thresholds {
		sources[i] = &planSource{threshold: th, cols: cols, cache: cache}
		outputs[th.Label] = th
	}

	combiner := &catchment.Combiner{
		Limit: pl.opts.ThresholdLimit,
		OnResult: func(ctx context.Context, res *catchment.Result) error {
			th := outputs[res.Label]
			if err := export.WriteFacilityDemand(th.FacilityOutput, res.Facilities, pl.opts.Export); err != nil {
				return err
			}
			if err := export.WriteCorrections(th.CorrectionOutput, res.Corrections, pl.opts.Export); err != nil {
				return err
			}
			log.Info("pipeline: threshold complete",
				zap.String("label", res.Label),
				zap.Float64("threshold", res.Threshold),
				zap.Int("retained_rows", res.Stats.RetainedRows),
				zap.Int("origins", len(res.Corrections)),
			)
			summary := summarize(runID, d.Name, res)
			return pl.retry(ctx, "save threshold", func(ctx context.Context) error {
				return pl.store.SaveThreshold(ctx, summary)
			})
		},
	}

	results, err := combiner.Run(ctx, d.Name, sources)
	dr.Thresholds = results
	if err != nil {
		pl.recordFailure(ctx, runID, d.Name, err)
		dr.Err = err
		return dr
	}

	extras := make([]catchment.Composite, 0, len(d.Matches))
	for _, m := range d.Matches {
		vals, err := ingest.LoadValues(ctx, m.Source, m.IDColumn, m.ValueColumn, m.Format)
		if err != nil {
			dr.Err = eris.Wrapf(err, "pipeline: dataset %s: load match %s", d.Name, m.Source)
			return dr
		}
		extras = append(extras, catchment.Composite(vals))
	}

	composite := catchment.Combine(results, extras...)
	dr.Scores = composite.Scores()
	if err := export.WriteComposite(d.CompositeOutput, dr.Scores, pl.opts.Export); err != nil {
		dr.Err = err
		return dr
	}

	stored := make([]model.DatasetScore, len(dr.Scores))
	for i, s := range dr.Scores {
		stored[i] = model.DatasetScore{Dataset: d.Name, CompositeScore: s}
	}

	if d.Points != "" {
		joined, err := pl.joinPoints(ctx, cols, d, composite)
		if err != nil {
			dr.Err = err
			return dr
		}
		dr.JoinedPoints = len(joined)
		coords := make(map[string]export.JoinedPoint, len(joined))
		for _, jp := range joined {
			if jp.Score == nil {
				dr.UnmatchedPoints++
				continue
			}
			if jp.HasGeom {
				coords[jp.ID] = jp
			}
		}
		for i := range stored {
			if jp, ok := coords[stored[i].OriginID]; ok {
				x, y := jp.X, jp.Y
				stored[i].X, stored[i].Y = &x, &y
			}
		}
	}

	err = pl.retry(ctx, "save scores", func(ctx context.Context) error {
		return pl.store.SaveScores(ctx, runID, stored)
	})
	if err != nil {
		dr.Err = eris.Wrapf(err, "pipeline: dataset %s: save scores", d.Name)
		return dr
	}

	log.Info("pipeline: dataset complete",
		zap.Int("thresholds", len(results)),
		zap.Int("matches", len(extras)),
		zap.Int("origins", len(dr.Scores)),
	)
	return dr
}

func (pl *Pipeline) joinPoints(ctx context.Context, cols ingest.Columns, d plan.Dataset, composite catchment.Composite) ([]export.JoinedPoint, error) {
	points, header, err := ingest.LoadPoints(ctx, d.Points, cols.Points)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: dataset %s: load points", d.Name)
	}
	joined, _ := export.JoinPoints(points, composite)
	if err := export.WriteJoinedCSV(d.JoinOutput, header, joined, pl.opts.Export); err != nil {
		return nil, err
	}
	n, err := export.WriteGeoJSON(d.GeoJSONOutput, joined)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("pipeline: wrote geojson", zap.String("dataset", d.Name), zap.Int("features", n))
	return joined, nil
}

// recordFailure stores a summary row for the threshold that failed, when the
// error can be attributed to one.
func (pl *Pipeline) recordFailure(ctx context.Context, runID, dataset string, err error) {
	var te *catchment.ThresholdError
	if !errors.As(err, &te) {
		return
	}
	summary := model.ThresholdSummary{
		RunID:     runID,
		Dataset:   dataset,
		Label:     te.Label,
		Threshold: te.Threshold,
		Error:     te.Err.Error(),
	}
	if serr := pl.store.SaveThreshold(context.WithoutCancel(ctx), summary); serr != nil {
		zap.L().Warn("pipeline: record threshold failure", zap.String("dataset", dataset), zap.Error(serr))
	}
}

// retry guards ledger writes against lock contention between datasets
// writing concurrently.
func (pl *Pipeline) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	cfg := resilience.RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     time.Second,
		JitterFraction: 0.25,
		OnRetry:        resilience.RetryLogger("pipeline", op),
	}
	return resilience.Do(ctx, cfg, fn)
}

func summarize(runID, dataset string, res *catchment.Result) model.ThresholdSummary {
	return model.ThresholdSummary{
		RunID:               runID,
		Dataset:             dataset,
		Label:               res.Label,
		Threshold:           res.Threshold,
		RetainedRows:        res.Stats.RetainedRows,
		Origins:             len(res.Corrections),
		Facilities:          len(res.Facilities),
		UndefinedRatios:     res.Stats.UndefinedRatios,
		UnmatchedOrigins:    res.Stats.UnmatchedOrigins,
		UnmatchedFacilities: res.Stats.UnmatchedFacilities,
	}
}
