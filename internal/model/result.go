package model

// Ratio is a facility supply-to-demand ratio. Defined is false when the
// facility's aggregated demand is zero and the ratio cannot be computed.
type Ratio struct {
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
}

// UndefinedRatio is the sentinel for a facility with zero aggregated demand.
var UndefinedRatio = Ratio{}

// DefinedRatio wraps a computable ratio value.
func DefinedRatio(v float64) Ratio {
	return Ratio{Value: v, Defined: true}
}

// FacilityDemand is the facility-level aggregate for one threshold.
type FacilityDemand struct {
	FacilityID  string  `json:"facility_id"`
	DemandTotal float64 `json:"demand_total"`
	Capacity    float64 `json:"capacity"`
	Ratio       Ratio   `json:"ratio"`
	// Matched is false when the destination had no row in the facility table.
	Matched bool `json:"matched"`
}

// OriginCorrection is the accessibility correction of one origin for one threshold.
type OriginCorrection struct {
	OriginID   string  `json:"origin_id"`
	Correction float64 `json:"correction"`
	// Links counts the OD rows of this origin that survived the filter.
	Links int `json:"links"`
	// UndefinedLinks counts links to facilities whose ratio is undefined.
	UndefinedLinks int `json:"undefined_links"`
}

// Undefined reports whether every surviving link of the origin points at a
// facility with an undefined ratio, so no correction could be computed.
func (c OriginCorrection) Undefined() bool {
	return c.Links > 0 && c.Links == c.UndefinedLinks
}

// CompositeScore is the final per-origin accessibility score.
type CompositeScore struct {
	OriginID string  `json:"origin_id"`
	Score    float64 `json:"score"`
}
