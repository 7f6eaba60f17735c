package ingest

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ShapeTable is a shapefile attribute table with the geometry of each row.
type ShapeTable struct {
	*Table
	Shapes []shp.Shape
}

// ReadShapefile reads the attribute table (.dbf) and geometries (.shp) of a
// shapefile. Attribute values that are not UTF-8 are decoded as GBK/GB18030.
func ReadShapefile(shpPath string) (*ShapeTable, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	header := fieldNames(fields)

	var rows [][]string
	var shapes []shp.Shape
	var nilShapes int
	for reader.Next() {
		_, shape := reader.Shape()
		if shape == nil {
			nilShapes++
		}
		row := make([]string, len(fields))
		for i := range fields {
			val := strings.TrimRight(reader.Attribute(i), "\x00")
			row[i] = strings.TrimSpace(decodeString(val))
		}
		rows = append(rows, row)
		shapes = append(shapes, shape)
	}

	if nilShapes > 0 {
		zap.L().Debug("shapefile: records without geometry",
			zap.String("path", shpPath),
			zap.Int("count", nilShapes),
		)
	}

	return &ShapeTable{Table: NewTable(shpPath, header, rows), Shapes: shapes}, nil
}

// readShapeHeader returns the attribute names of a shapefile without reading
// its records.
func readShapeHeader(shpPath string) ([]string, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "shapefile: open %s", shpPath)
	}
	defer func() { _ = reader.Close() }()
	return fieldNames(reader.Fields()), nil
}

func fieldNames(fields []shp.Field) []string {
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = decodeString(strings.TrimRight(f.String(), "\x00"))
	}
	return header
}

// pointOf returns a representative coordinate for a shape: the point itself,
// or the bounding-box centre of lines and polygons.
func pointOf(shape shp.Shape) (x, y float64, ok bool) {
	switch s := shape.(type) {
	case nil:
		return 0, 0, false
	case *shp.Point:
		return s.X, s.Y, true
	case *shp.PointZ:
		return s.X, s.Y, true
	case *shp.PointM:
		return s.X, s.Y, true
	}
	box := shape.BBox()
	return (box.MinX + box.MaxX) / 2, (box.MinY + box.MaxY) / 2, true
}
