package ingest

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catchment-cli/internal/model"
)

// ODColumns names the OD table columns.
type ODColumns struct {
	Origin      string `yaml:"origin"`
	Destination string `yaml:"destination"`
	Distance    string `yaml:"distance"`
	Format      Format `yaml:"format"`
}

// FacilityColumns names the facility table columns.
type FacilityColumns struct {
	ID       string `yaml:"id"`
	Capacity string `yaml:"capacity"`
	Format   Format `yaml:"format"`
}

// PopulationColumns names the population table columns.
type PopulationColumns struct {
	Origin string `yaml:"origin"`
	Count  string `yaml:"count"`
	Format Format `yaml:"format"`
}

// PointColumns names the point table columns. X and Y are only used for
// non-shapefile point tables.
type PointColumns struct {
	ID     string `yaml:"id"`
	X      string `yaml:"x"`
	Y      string `yaml:"y"`
	Format Format `yaml:"format"`
}

// Columns groups the column names and reader formats of every input table.
type Columns struct {
	OD         ODColumns         `yaml:"od"`
	Facility   FacilityColumns   `yaml:"facility"`
	Population PopulationColumns `yaml:"population"`
	Points     PointColumns      `yaml:"points"`
}

// DefaultColumns returns the column names used by network-analysis exports
// the tool was built around (DBF names are truncated to ten characters).
func DefaultColumns() Columns {
	return Columns{
		OD:         ODColumns{Origin: "OriginID", Destination: "Destinatio", Distance: "Total_Leng"},
		Facility:   FacilityColumns{ID: "sheshi3", Capacity: "床位数"},
		Population: PopulationColumns{Origin: "OID_", Count: "grid_code"},
		Points:     PointColumns{ID: "OID_", X: "x", Y: "y"},
	}
}

// WithDefaults fills every empty column name from DefaultColumns.
func (c Columns) WithDefaults() Columns {
	d := DefaultColumns()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&c.OD.Origin, d.OD.Origin)
	fill(&c.OD.Destination, d.OD.Destination)
	fill(&c.OD.Distance, d.OD.Distance)
	fill(&c.Facility.ID, d.Facility.ID)
	fill(&c.Facility.Capacity, d.Facility.Capacity)
	fill(&c.Population.Origin, d.Population.Origin)
	fill(&c.Population.Count, d.Population.Count)
	fill(&c.Points.ID, d.Points.ID)
	fill(&c.Points.X, d.Points.X)
	fill(&c.Points.Y, d.Points.Y)
	return c
}

// Validate checks the reader format of every table kind.
func (c Columns) Validate() error {
	formats := []struct {
		name string
		f    Format
	}{
		{"od", c.OD.Format},
		{"facility", c.Facility.Format},
		{"population", c.Population.Format},
		{"points", c.Points.Format},
	}
	for _, e := range formats {
		if err := e.f.Validate(); err != nil {
			return eris.Wrapf(err, "columns: %s", e.name)
		}
	}
	return nil
}

// Check verifies that the OD table at path has the configured columns.
func (c ODColumns) Check(ctx context.Context, path string) error {
	return CheckColumns(ctx, path, c.Format, c.Origin, c.Destination, c.Distance)
}

// Check verifies that the facility table at path has the configured columns.
func (c FacilityColumns) Check(ctx context.Context, path string) error {
	return CheckColumns(ctx, path, c.Format, c.ID, c.Capacity)
}

// Check verifies that the population table at path has the configured columns.
func (c PopulationColumns) Check(ctx context.Context, path string) error {
	return CheckColumns(ctx, path, c.Format, c.Origin, c.Count)
}

// Check verifies that the point table at path has the ID column.
func (c PointColumns) Check(ctx context.Context, path string) error {
	return CheckColumns(ctx, path, c.Format, c.ID)
}

// ReadTable reads a CSV, XLSX or shapefile by extension. f applies to CSV
// and XLSX sources; shapefiles ignore it.
func ReadTable(ctx context.Context, path string, f Format) (*Table, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		opts, err := f.csvOptions()
		if err != nil {
			return nil, err
		}
		return ReadCSV(ctx, path, opts)
	case ".xlsx":
		return ReadXLSX(path, f.xlsxOptions())
	case ".shp", ".dbf":
		st, err := ReadShapefile(shpPath(path))
		if err != nil {
			return nil, err
		}
		return st.Table, nil
	}
	return nil, eris.Errorf("ingest: unsupported table format %q", path)
}

// ReadHeader returns the column names of a table without loading its rows,
// except for workbooks, which are opened whole.
func ReadHeader(ctx context.Context, path string, f Format) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: read header")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		opts, err := f.csvOptions()
		if err != nil {
			return nil, err
		}
		return readCSVHeader(path, opts)
	case ".xlsx":
		t, err := ReadXLSX(path, f.xlsxOptions())
		if err != nil {
			return nil, err
		}
		return t.Header, nil
	case ".shp", ".dbf":
		return readShapeHeader(shpPath(path))
	}
	return nil, eris.Errorf("ingest: unsupported table format %q", path)
}

// CheckColumns returns a *catchment.SchemaError when the table at path lacks
// any of names. Matching follows Table.Column.
func CheckColumns(ctx context.Context, path string, f Format, names ...string) error {
	header, err := ReadHeader(ctx, path, f)
	if err != nil {
		return err
	}
	_, err = NewTable(path, header, nil).Require(names...)
	return err
}

func shpPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".shp"
}

// LoadOD reads OD records. Rows with a blank, unparseable or negative
// distance are skipped and logged; a missing column is a schema error.
func LoadOD(ctx context.Context, path string, cols ODColumns) ([]model.ODRecord, error) {
	t, err := ReadTable(ctx, path, cols.Format)
	if err != nil {
		return nil, err
	}
	idx, err := t.Require(cols.Origin, cols.Destination, cols.Distance)
	if err != nil {
		return nil, err
	}

	out := make([]model.ODRecord, 0, len(t.Rows))
	var invalid int
	for _, row := range t.Rows {
		d, ok := ParseNumber(Cell(row, idx[2]))
		if !ok || d < 0 {
			invalid++
			continue
		}
		out = append(out, model.ODRecord{
			OriginID:      NormalizeID(Cell(row, idx[0])),
			DestinationID: NormalizeID(Cell(row, idx[1])),
			Distance:      d,
		})
	}
	if invalid > 0 {
		zap.L().Warn("ingest: skipped OD rows with invalid distance",
			zap.String("path", path),
			zap.Int("skipped", invalid),
		)
	}
	return out, nil
}

// LoadFacilities reads facility capacities. Blank capacities count as 0.
func LoadFacilities(ctx context.Context, path string, cols FacilityColumns) ([]model.Facility, error) {
	t, err := ReadTable(ctx, path, cols.Format)
	if err != nil {
		return nil, err
	}
	idx, err := t.Require(cols.ID, cols.Capacity)
	if err != nil {
		return nil, err
	}

	out := make([]model.Facility, 0, len(t.Rows))
	for _, row := range t.Rows {
		id := NormalizeID(Cell(row, idx[0]))
		if id == "" {
			continue
		}
		c, _ := ParseNumber(Cell(row, idx[1]))
		out = append(out, model.Facility{ID: id, Capacity: c})
	}
	return out, nil
}

// LoadPopulation reads population counts per origin. Blank counts are 0.
func LoadPopulation(ctx context.Context, path string, cols PopulationColumns) ([]model.Population, error) {
	t, err := ReadTable(ctx, path, cols.Format)
	if err != nil {
		return nil, err
	}
	idx, err := t.Require(cols.Origin, cols.Count)
	if err != nil {
		return nil, err
	}

	out := make([]model.Population, 0, len(t.Rows))
	for _, row := range t.Rows {
		id := NormalizeID(Cell(row, idx[0]))
		if id == "" {
			continue
		}
		n, _ := ParseNumber(Cell(row, idx[1]))
		out = append(out, model.Population{OriginID: id, Count: n})
	}
	return out, nil
}

// LoadValues reads an id -> value mapping, used for external match-result
// columns and for re-combining previously written correction tables. Blank
// values are 0.
func LoadValues(ctx context.Context, path, idCol, valueCol string, f Format) (map[string]float64, error) {
	t, err := ReadTable(ctx, path, f)
	if err != nil {
		return nil, err
	}
	idx, err := t.Require(idCol, valueCol)
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64, len(t.Rows))
	for _, row := range t.Rows {
		id := NormalizeID(Cell(row, idx[0]))
		if id == "" {
			continue
		}
		v, _ := ParseNumber(Cell(row, idx[1]))
		out[id] += v
	}
	return out, nil
}

// LoadPoints reads the point layer scores are joined onto. Shapefiles take
// their coordinates from geometry; other tables use the X/Y columns when
// present. Every attribute is kept for the export.
func LoadPoints(ctx context.Context, path string, cols PointColumns) ([]model.Point, []string, error) {
	var (
		t  *Table
		st *ShapeTable
	)
	if strings.EqualFold(filepath.Ext(path), ".shp") {
		var err error
		st, err = ReadShapefile(path)
		if err != nil {
			return nil, nil, err
		}
		t = st.Table
	} else {
		var err error
		t, err = ReadTable(ctx, path, cols.Format)
		if err != nil {
			return nil, nil, err
		}
	}

	idx, err := t.Require(cols.ID)
	if err != nil {
		return nil, nil, err
	}
	xi, hasX := t.Column(cols.X)
	yi, hasY := t.Column(cols.Y)

	out := make([]model.Point, 0, len(t.Rows))
	for i, row := range t.Rows {
		p := model.Point{
			ID:         NormalizeID(Cell(row, idx[0])),
			Attributes: make(map[string]string, len(t.Header)),
		}
		for j, h := range t.Header {
			p.Attributes[h] = Cell(row, j)
		}
		switch {
		case st != nil:
			p.X, p.Y, p.HasGeom = pointOf(st.Shapes[i])
		case hasX && hasY:
			x, okX := ParseNumber(Cell(row, xi))
			y, okY := ParseNumber(Cell(row, yi))
			p.X, p.Y, p.HasGeom = x, y, okX && okY
		}
		out = append(out, p)
	}
	return out, t.Header, nil
}
