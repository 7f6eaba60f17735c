package catchment

import (
	"math"

	"github.com/sells-group/catchment-cli/internal/model"
)

// Demand is the outcome of joining weighted OD rows to population.
type Demand struct {
	// Contributions holds Weight*Population for each weighted row, by index.
	Contributions []float64
	// Totals maps facility ID to its demand-weighted population.
	Totals map[string]float64
	// Facilities lists facility IDs in first-seen order.
	Facilities []string
	// UnmatchedOrigins counts rows whose origin had no population record.
	UnmatchedOrigins int
}

// PopulationIndex builds an origin -> population lookup. Duplicate origins are
// summed; negative or non-finite counts are treated as 0.
func PopulationIndex(population []model.Population) map[string]float64 {
	idx := make(map[string]float64, len(population))
	for _, p := range population {
		idx[p.OriginID] += nonNegative(p.Count)
	}
	return idx
}

// AggregateDemand left-joins weighted rows to population on origin ID and sums
// the demand contribution of every row per destination facility. Rows with no
// population record contribute 0 and are counted, never dropped.
func AggregateDemand(weighted []model.WeightedOD, population map[string]float64) Demand {
	d := Demand{
		Contributions: make([]float64, len(weighted)),
		Totals:        make(map[string]float64),
	}
	for i, w := range weighted {
		pop, ok := population[w.OriginID]
		if !ok {
			d.UnmatchedOrigins++
		}
		c := w.Weight * pop
		d.Contributions[i] = c
		if _, seen := d.Totals[w.DestinationID]; !seen {
			d.Facilities = append(d.Facilities, w.DestinationID)
		}
		d.Totals[w.DestinationID] += c
	}
	return d
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
