package export

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// WriteGeoJSON writes scored points as a GeoJSON FeatureCollection for map
// visualisation. Points without coordinates are omitted; the number written
// is returned.
func WriteGeoJSON(path string, points []JoinedPoint) (int, error) {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(points))}
	for _, p := range points {
		if !p.HasGeom {
			continue
		}
		props := make(map[string]interface{}, len(p.Attributes)+1)
		for k, v := range p.Attributes {
			props[k] = v
		}
		if p.Score != nil {
			props[CompositeColumn] = *p.Score
		} else {
			props[CompositeColumn] = nil
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         p.ID,
			Geometry:   geom.NewPointFlat(geom.XY, []float64{p.X, p.Y}),
			Properties: props,
		})
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return 0, eris.Wrapf(err, "export: encode geojson %s", path)
	}
	if err := writeFile(path, data, Options{}); err != nil {
		return 0, err
	}
	return len(fc.Features), nil
}
