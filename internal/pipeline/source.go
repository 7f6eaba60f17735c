package pipeline

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catchment-cli/internal/catchment"
	"github.com/sells-group/catchment-cli/internal/ingest"
	"github.com/sells-group/catchment-cli/internal/model"
	"github.com/sells-group/catchment-cli/internal/plan"
)

// planSource loads one threshold's tables from the files named in the plan.
type planSource struct {
	threshold plan.Threshold
	cols      ingest.Columns
	cache     *tableCache
}

func (s *planSource) Load(ctx context.Context) (catchment.Input, error) {
	in := catchment.Input{Label: s.threshold.Label, Threshold: s.threshold.Distance}

	od, err := ingest.LoadOD(ctx, s.threshold.OD, s.cols.OD)
	if err != nil {
		return in, err
	}
	facilities, err := s.cache.facilities(ctx, s.threshold.Facilities, s.cols.Facility)
	if err != nil {
		return in, err
	}
	population, err := s.cache.population(ctx, s.threshold.Population, s.cols.Population)
	if err != nil {
		return in, err
	}

	in.OD = od
	in.Facilities = facilities
	in.Population = population
	return in, nil
}

// checkSources verifies the columns of every table a dataset reads before any
// threshold runs, so a bad file in a later threshold fails the dataset before
// earlier thresholds have written their outputs. Threshold sources fail with
// a *catchment.ThresholdError.
func checkSources(ctx context.Context, cols ingest.Columns, d plan.Dataset) error {
	seen := make(map[string]bool)
	once := func(kind, path string, check func(context.Context, string) error) error {
		key := kind + "\x00" + path
		if seen[key] {
			return nil
		}
		seen[key] = true
		return check(ctx, path)
	}

	for _, th := range d.Thresholds {
		err := once("od", th.OD, cols.OD.Check)
		if err == nil {
			err = once("facility", th.Facilities, cols.Facility.Check)
		}
		if err == nil {
			err = once("population", th.Population, cols.Population.Check)
		}
		if err != nil {
			return &catchment.ThresholdError{Dataset: d.Name, Label: th.Label, Threshold: th.Distance, Err: err}
		}
	}

	for _, m := range d.Matches {
		if err := ingest.CheckColumns(ctx, m.Source, m.Format, m.IDColumn, m.ValueColumn); err != nil {
			return eris.Wrapf(err, "pipeline: dataset %s: match %s", d.Name, m.Source)
		}
	}
	if d.Points != "" {
		if err := once("points", d.Points, cols.Points.Check); err != nil {
			return eris.Wrapf(err, "pipeline: dataset %s: points", d.Name)
		}
	}
	return nil
}

// tableCache shares facility and population tables between the thresholds of
// one dataset, which commonly reuse the same files. Cached slices are never
// mutated.
type tableCache struct {
	mu  sync.Mutex
	fac map[string]*cacheEntry[[]model.Facility]
	pop map[string]*cacheEntry[[]model.Population]
}

type cacheEntry[T any] struct {
	once sync.Once
	val  T
	err  error
}

func newTableCache() *tableCache {
	return &tableCache{
		fac: make(map[string]*cacheEntry[[]model.Facility]),
		pop: make(map[string]*cacheEntry[[]model.Population]),
	}
}

func (c *tableCache) facilities(ctx context.Context, path string, cols ingest.FacilityColumns) ([]model.Facility, error) {
	c.mu.Lock()
	e, ok := c.fac[path]
	if !ok {
		e = &cacheEntry[[]model.Facility]{}
		c.fac[path] = e
	}
	c.mu.Unlock()

	e.once.Do(func() { e.val, e.err = ingest.LoadFacilities(ctx, path, cols) })
	return e.val, e.err
}

func (c *tableCache) population(ctx context.Context, path string, cols ingest.PopulationColumns) ([]model.Population, error) {
	c.mu.Lock()
	e, ok := c.pop[path]
	if !ok {
		e = &cacheEntry[[]model.Population]{}
		c.pop[path] = e
	}
	c.mu.Unlock()

	e.once.Do(func() { e.val, e.err = ingest.LoadPopulation(ctx, path, cols) })
	return e.val, e.err
}
