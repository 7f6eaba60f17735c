// Package model defines the record types that flow through the catchment pipeline.
package model

// ODRecord is one origin-destination pair with a pre-computed travel distance.
type ODRecord struct {
	OriginID      string  `json:"origin_id"`
	DestinationID string  `json:"destination_id"`
	Distance      float64 `json:"distance"`
}

// Facility is a supply point (e.g. an eldercare home) and its capacity.
type Facility struct {
	ID       string  `json:"id"`
	Capacity float64 `json:"capacity"`
}

// Population is the demand count attached to an origin point.
type Population struct {
	OriginID string  `json:"origin_id"`
	Count    float64 `json:"count"`
}

// WeightedOD is an ODRecord that survived the threshold filter, carrying its
// Gaussian decay weight. Only lives for the duration of one threshold.
type WeightedOD struct {
	ODRecord
	Weight float64 `json:"weight"`
}

// Point is a row of the point layer that composite scores are joined onto.
type Point struct {
	ID         string            `json:"id"`
	X          float64           `json:"x"`
	Y          float64           `json:"y"`
	HasGeom    bool              `json:"has_geom"`
	Attributes map[string]string `json:"attributes,omitempty"`
}
