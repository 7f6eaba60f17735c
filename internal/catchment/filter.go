// Package catchment implements the Gaussian two-step floating catchment area
// (2SFCA) accessibility model.
//
// One threshold run filters OD pairs by distance, weights them with a Gaussian
// decay, aggregates demand per facility, and redistributes each facility's
// supply-to-demand ratio back to its origins. Runs at several thresholds are
// independent and are summed into a composite score per origin.
package catchment

import "github.com/sells-group/catchment-cli/internal/model"

// Filter returns the records whose travel distance is strictly below threshold,
// preserving input order. The input slice is not modified.
func Filter(records []model.ODRecord, threshold float64) []model.ODRecord {
	out := make([]model.ODRecord, 0, len(records))
	for _, r := range records {
		if r.Distance < threshold {
			out = append(out, r)
		}
	}
	return out
}
