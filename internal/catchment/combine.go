package catchment

import (
	"context"
	"math"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catchment-cli/internal/model"
)

// Source supplies the input tables of one threshold run. Implementations
// should fill Label and Threshold even when returning an error so the failure
// can be attributed.
type Source interface {
	Load(ctx context.Context) (Input, error)
}

// StaticSource is a Source backed by tables already in memory.
type StaticSource Input

// Load returns the wrapped input.
func (s StaticSource) Load(context.Context) (Input, error) {
	return Input(s), nil
}

// Combiner runs several thresholds of one dataset concurrently.
type Combiner struct {
	// Limit caps concurrent threshold runs; <= 0 means unlimited.
	Limit int
	// OnResult, when set, is called as each threshold finishes, from that
	// threshold's goroutine. Results delivered before a failure stay valid.
	OnResult func(ctx context.Context, res *Result) error
}

// Run executes every source independently and returns the results in source
// order. The first fatal error stops new thresholds from starting and is
// returned as a *ThresholdError.
func (c *Combiner) Run(ctx context.Context, dataset string, sources []Source) ([]*Result, error) {
	results := make([]*Result, len(sources))

	g, gCtx := errgroup.WithContext(ctx)
	if c.Limit > 0 {
		g.SetLimit(c.Limit)
	}

	for i, src := range sources {
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gCtx.Err() != nil {
				return nil
			}
			in, err := src.Load(gCtx)
			if err != nil {
				return &ThresholdError{Dataset: dataset, Label: in.Label, Threshold: in.Threshold, Err: err}
			}
			res, err := Run(gCtx, in)
			if err != nil {
				return &ThresholdError{Dataset: dataset, Label: in.Label, Threshold: in.Threshold, Err: err}
			}
			if c.OnResult != nil {
				if err := c.OnResult(gCtx, res); err != nil {
					return &ThresholdError{Dataset: dataset, Label: in.Label, Threshold: in.Threshold, Err: err}
				}
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	if err := ctx.Err(); err != nil {
		return results, eris.Wrapf(err, "catchment: dataset %s cancelled", dataset)
	}
	return results, nil
}

// Composite maps origin ID to an accessibility score.
type Composite map[string]float64

// FromCorrections builds a Composite from one threshold's corrections.
func FromCorrections(corrections []model.OriginCorrection) Composite {
	c := make(Composite, len(corrections))
	for _, oc := range corrections {
		c[oc.OriginID] += oc.Correction
	}
	return c
}

// Add returns the key-wise sum of c and other. Origins missing from either side
// count as 0; non-finite values are treated as 0. Neither operand is modified.
func (c Composite) Add(other Composite) Composite {
	out := make(Composite, len(c)+len(other))
	for id, v := range c {
		out[id] += finite(v)
	}
	for id, v := range other {
		out[id] += finite(v)
	}
	return out
}

// Scores returns the composite as rows sorted by origin ID.
func (c Composite) Scores() []model.CompositeScore {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	SortIDs(ids)
	out := make([]model.CompositeScore, len(ids))
	for i, id := range ids {
		out[i] = model.CompositeScore{OriginID: id, Score: c[id]}
	}
	return out
}

// Combine sums the corrections of every threshold result and every extra
// contribution (e.g. external match-result columns) into one score per origin.
// Nil results, from thresholds that never ran, are skipped.
func Combine(results []*Result, extras ...Composite) Composite {
	out := Composite{}
	for _, r := range results {
		if r == nil {
			continue
		}
		out = out.Add(FromCorrections(r.Corrections))
	}
	for _, e := range extras {
		out = out.Add(e)
	}
	zap.L().Debug("catchment: combined",
		zap.Int("thresholds", len(results)),
		zap.Int("extras", len(extras)),
		zap.Int("origins", len(out)),
	)
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
