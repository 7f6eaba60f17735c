package catchment

import (
	"github.com/sells-group/catchment-cli/internal/model"
)

// Correction is the outcome of redistributing facility ratios to origins.
type Correction struct {
	// Facilities holds one entry per facility seen in the weighted rows,
	// sorted by ID. Zero-demand facilities are kept with an undefined ratio.
	Facilities []model.FacilityDemand
	// Origins maps origin ID to its accumulated correction.
	Origins map[string]*model.OriginCorrection
	// UnmatchedFacilities counts rows whose destination had no facility record.
	UnmatchedFacilities int
	// UndefinedRatios counts facilities whose demand total was zero.
	UndefinedRatios int
}

// FacilityIndex builds a facility -> capacity lookup. Duplicate IDs are summed;
// negative or non-finite capacities are treated as 0.
func FacilityIndex(facilities []model.Facility) map[string]float64 {
	idx := make(map[string]float64, len(facilities))
	for _, f := range facilities {
		idx[f.ID] += nonNegative(f.Capacity)
	}
	return idx
}

// SupplyRatio divides capacity by demand. Zero demand yields the undefined
// sentinel rather than an infinity or NaN.
func SupplyRatio(capacity, demand float64) model.Ratio {
	if demand <= 0 {
		return model.UndefinedRatio
	}
	return model.DefinedRatio(capacity / demand)
}

// Correct computes each facility's supply-to-demand ratio and sums
// Weight*Ratio per origin. Destinations with no facility record have capacity
// 0. Rows linked to a facility with an undefined ratio are excluded from the
// origin's sum and counted in its UndefinedLinks.
func Correct(weighted []model.WeightedOD, demand Demand, capacity map[string]float64) Correction {
	c := Correction{
		Facilities: make([]model.FacilityDemand, 0, len(demand.Facilities)),
		Origins:    make(map[string]*model.OriginCorrection),
	}

	ratios := make(map[string]model.Ratio, len(demand.Facilities))
	for _, id := range demand.Facilities {
		capVal, matched := capacity[id]
		total := demand.Totals[id]
		r := SupplyRatio(capVal, total)
		if !r.Defined {
			c.UndefinedRatios++
		}
		ratios[id] = r
		c.Facilities = append(c.Facilities, model.FacilityDemand{
			FacilityID:  id,
			DemandTotal: total,
			Capacity:    capVal,
			Ratio:       r,
			Matched:     matched,
		})
	}
	sortFacilities(c.Facilities)

	for _, w := range weighted {
		if _, ok := capacity[w.DestinationID]; !ok {
			c.UnmatchedFacilities++
		}
		oc, ok := c.Origins[w.OriginID]
		if !ok {
			oc = &model.OriginCorrection{OriginID: w.OriginID}
			c.Origins[w.OriginID] = oc
		}
		oc.Links++
		r := ratios[w.DestinationID]
		if !r.Defined {
			oc.UndefinedLinks++
			continue
		}
		oc.Correction += w.Weight * r.Value
	}
	return c
}
