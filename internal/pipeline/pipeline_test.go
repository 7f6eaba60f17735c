package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catchment-cli/internal/catchment"
	"github.com/sells-group/catchment-cli/internal/export"
	"github.com/sells-group/catchment-cli/internal/ingest"
	"github.com/sells-group/catchment-cli/internal/model"
	"github.com/sells-group/catchment-cli/internal/plan"
	"github.com/sells-group/catchment-cli/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// writeInputs lays out a small dataset under dir. Facility H is reached only
// by origin 5, which has no population, so H's ratio is undefined.
func writeInputs(t *testing.T, dir string) {
	t.Helper()
	writeFile(t, dir, "od.csv", "OriginID,Destinatio,Total_Leng\n1,F,0\n2,F,1500\n3,F,9000\n5,H,100\n")
	writeFile(t, dir, "fac.csv", "sheshi3,床位数\nF,10\nH,3\n")
	writeFile(t, dir, "pop.csv", "OID_,grid_code\n1,100\n2,100\n3,50\n4,20\n5,0\n")
	writeFile(t, dir, "match.csv", "OriginID,匹配结果1\n1,0.5\n4,0.25\n")
	writeFile(t, dir, "points.csv", "OID_,x,y,name\n1,106.5,29.5,a\n2,106.6,29.6,b\n9,106.7,29.7,z\n")
}

const pipelinePlan = `
datasets:
  - name: cq
    population: pop.csv
    points: points.csv
    output_dir: out
    matches:
      - source: match.csv
        value_column: 匹配结果1
    thresholds:
      - {label: d, distance: 3000, od: od.csv, facilities: fac.csv}
      - {label: e, distance: 5000, od: od.csv, facilities: fac.csv}
`

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func loadScores(t *testing.T, path, col string) map[string]float64 {
	t.Helper()
	vals, err := ingest.LoadValues(context.Background(), path, export.OriginColumn, col, ingest.Format{})
	require.NoError(t, err)
	return vals
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	p, err := plan.Parse([]byte(pipelinePlan), dir)
	require.NoError(t, err)

	st := newTestStore(t)
	ctx := context.Background()

	report, err := New(st, Options{DatasetLimit: 2, ThresholdLimit: 2, Export: export.Options{BOM: true}}).Run(ctx, "plan.yaml", p)
	require.NoError(t, err)
	require.Len(t, report.Datasets, 1)
	require.NoError(t, report.Datasets[0].Err)
	assert.Equal(t, 0, report.Failed())
	assert.Equal(t, model.RunStatusComplete, report.Run.Status)

	out := filepath.Join(dir, "out")
	d := loadScores(t, filepath.Join(out, "corrections_d.csv"), export.CorrectionColumn)
	e := loadScores(t, filepath.Join(out, "corrections_e.csv"), export.CorrectionColumn)
	composite := loadScores(t, filepath.Join(out, "composite.csv"), export.CompositeColumn)

	// Origin 1 sits on the facility: weight 1, ratio 10 / 170.137.
	assert.InDelta(t, 0.058776, d["1"], 1e-6)
	assert.InDelta(t, 0.041224, d["2"], 1e-6)
	// Origin 3 is beyond both thresholds, origin 4 has no OD rows.
	assert.Equal(t, 0.0, d["3"])
	assert.Contains(t, d, "4")

	for _, id := range []string{"2", "3"} {
		assert.InDelta(t, d[id]+e[id], composite[id], 1e-9, id)
	}
	assert.InDelta(t, d["1"]+e["1"]+0.5, composite["1"], 1e-9)
	assert.InDelta(t, d["4"]+e["4"]+0.25, composite["4"], 1e-9)
	// Origin 5 has no computable correction; it still scores 0 overall.
	assert.Equal(t, 0.0, composite["5"])

	corrTable, err := ingest.ReadCSV(ctx, filepath.Join(out, "corrections_d.csv"), ingest.CSVOptions{})
	require.NoError(t, err)
	cells := make(map[string]string, len(corrTable.Rows))
	for _, row := range corrTable.Rows {
		cells[row[0]] = row[1]
	}
	assert.Equal(t, "", cells["5"], "undefined correction is blank")
	assert.Equal(t, "0", cells["3"], "computed zero is written")

	facTable, err := ingest.ReadCSV(ctx, filepath.Join(out, "facilities_d.csv"), ingest.CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"FacilityID", "DemandTotal"}, facTable.Header)

	joined, err := ingest.ReadCSV(ctx, filepath.Join(out, "joined.csv"), ingest.CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"OID_", "x", "y", "name", export.CompositeColumn}, joined.Header)
	require.Len(t, joined.Rows, 3)
	assert.Equal(t, "", joined.Rows[2][4])
	assert.Equal(t, 1, report.Datasets[0].UnmatchedPoints)
	assert.FileExists(t, filepath.Join(out, "joined.geojson"))

	// Ledger.
	run, err := st.GetRun(ctx, report.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)

	ths, err := st.ListThresholds(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, ths, 2)
	assert.Equal(t, "d", ths[0].Label)
	assert.Equal(t, 3, ths[0].RetainedRows)
	assert.Equal(t, 2, ths[0].Facilities)
	assert.Equal(t, 1, ths[0].UndefinedRatios)

	scores, err := st.ListScores(ctx, run.ID, "cq")
	require.NoError(t, err)
	require.Len(t, scores, 5)
	byID := make(map[string]model.DatasetScore, len(scores))
	for _, s := range scores {
		byID[s.OriginID] = s
	}
	require.NotNil(t, byID["1"].X)
	assert.InDelta(t, 106.5, *byID["1"].X, 1e-9)
	assert.Nil(t, byID["3"].X)
}

func TestRun_DatasetFailureIsolated(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	p, err := plan.Parse([]byte(`
datasets:
  - name: good
    population: pop.csv
    output_dir: good
    thresholds:
      - {label: d, distance: 3000, od: od.csv, facilities: fac.csv}
  - name: bad
    population: pop.csv
    output_dir: bad
    thresholds:
      - {label: z, distance: 0, od: od.csv, facilities: fac.csv}
`), dir)
	require.NoError(t, err)

	st := newTestStore(t)
	ctx := context.Background()

	report, err := New(st, Options{DatasetLimit: 1}).Run(ctx, "plan.yaml", p)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.Equal(t, model.RunStatusPartial, report.Run.Status)

	require.NoError(t, report.Datasets[0].Err)
	assert.FileExists(t, filepath.Join(dir, "good", "composite.csv"))

	badErr := report.Datasets[1].Err
	require.Error(t, badErr)
	var te *catchment.ThresholdError
	require.True(t, errors.As(badErr, &te))
	assert.Equal(t, "z", te.Label)
	var de *catchment.DomainError
	assert.True(t, errors.As(badErr, &de))
	assert.NoFileExists(t, filepath.Join(dir, "bad", "composite.csv"))

	ths, err := st.ListThresholds(ctx, report.Run.ID)
	require.NoError(t, err)
	require.Len(t, ths, 2)
	assert.Equal(t, "bad", ths[0].Dataset)
	assert.NotEmpty(t, ths[0].Error)
}

func TestRun_SchemaError(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	writeFile(t, dir, "fac_bad.csv", "sheshi3,beds\nF,10\n")
	p, err := plan.Parse([]byte(`
datasets:
  - name: cq
    population: pop.csv
    thresholds:
      - {label: d, distance: 3000, od: od.csv, facilities: fac_bad.csv}
`), dir)
	require.NoError(t, err)

	report, err := New(nil, Options{}).Run(context.Background(), "plan.yaml", p)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, report.Run.Status)

	var se *catchment.SchemaError
	require.True(t, errors.As(report.Datasets[0].Err, &se))
	assert.Equal(t, "床位数", se.Column)
}

func TestRun_LaterThresholdSchemaErrorWritesNothing(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	writeFile(t, dir, "fac_bad.csv", "sheshi3,beds\nF,10\n")
	p, err := plan.Parse([]byte(`
datasets:
  - name: cq
    population: pop.csv
    output_dir: out
    thresholds:
      - {label: d, distance: 3000, od: od.csv, facilities: fac.csv}
      - {label: e, distance: 5000, od: od.csv, facilities: fac_bad.csv}
`), dir)
	require.NoError(t, err)

	st := newTestStore(t)
	ctx := context.Background()

	report, err := New(st, Options{ThresholdLimit: 1}).Run(ctx, "plan.yaml", p)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, report.Run.Status)

	dsErr := report.Datasets[0].Err
	var te *catchment.ThresholdError
	require.True(t, errors.As(dsErr, &te))
	assert.Equal(t, "e", te.Label)
	var se *catchment.SchemaError
	require.True(t, errors.As(dsErr, &se))
	assert.Equal(t, "床位数", se.Column)
	assert.Empty(t, report.Datasets[0].Thresholds)

	assert.NoFileExists(t, filepath.Join(dir, "out", "corrections_d.csv"))
	assert.NoFileExists(t, filepath.Join(dir, "out", "facilities_d.csv"))

	ths, err := st.ListThresholds(ctx, report.Run.ID)
	require.NoError(t, err)
	require.Len(t, ths, 1)
	assert.Equal(t, "e", ths[0].Label)
	assert.Contains(t, ths[0].Error, "床位数")
}

func TestRun_MatchSchemaErrorBeforeThresholds(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	p, err := plan.Parse([]byte(`
datasets:
  - name: cq
    population: pop.csv
    output_dir: out
    matches:
      - {source: match.csv, value_column: 匹配结果2}
    thresholds:
      - {label: d, distance: 3000, od: od.csv, facilities: fac.csv}
`), dir)
	require.NoError(t, err)

	report, err := New(nil, Options{}).Run(context.Background(), "plan.yaml", p)
	require.NoError(t, err)

	var se *catchment.SchemaError
	require.True(t, errors.As(report.Datasets[0].Err, &se))
	assert.Equal(t, "匹配结果2", se.Column)
	assert.NoFileExists(t, filepath.Join(dir, "out", "corrections_d.csv"))
}

func TestRun_SourceFormats(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	writeFile(t, dir, "od.txt", "# network export\nOriginID;Destinatio;Total_Leng\n1;F;0\n2;F;1500\n")
	writeFile(t, dir, "match.tsv.txt", "OriginID\tscore\n1\t0.5\n")
	p, err := plan.Parse([]byte(`
columns:
  od:
    format: {delimiter: ";", comment: "#"}
datasets:
  - name: cq
    population: pop.csv
    output_dir: out
    matches:
      - {source: match.tsv.txt, value_column: score, format: {delimiter: tab}}
    thresholds:
      - {label: d, distance: 3000, od: od.txt, facilities: fac.csv}
`), dir)
	require.NoError(t, err)

	report, err := New(nil, Options{}).Run(context.Background(), "plan.yaml", p)
	require.NoError(t, err)
	require.NoError(t, report.Datasets[0].Err)

	composite := loadScores(t, filepath.Join(dir, "out", "composite.csv"), export.CompositeColumn)
	assert.InDelta(t, 0.058776+0.5, composite["1"], 1e-6)
	assert.InDelta(t, 0.041224, composite["2"], 1e-6)
}

func TestRun_NoSurvivingRows(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	writeFile(t, dir, "od_far.csv", "OriginID,Destinatio,Total_Leng\n1,F,9000\n")
	p, err := plan.Parse([]byte(`
datasets:
  - name: cq
    population: pop.csv
    output_dir: out
    thresholds:
      - {label: tiny, distance: 100, od: od_far.csv, facilities: fac.csv}
      - {label: d, distance: 3000, od: od.csv, facilities: fac.csv}
`), dir)
	require.NoError(t, err)

	report, err := New(nil, Options{}).Run(context.Background(), "plan.yaml", p)
	require.NoError(t, err)
	require.NoError(t, report.Datasets[0].Err)

	tiny := loadScores(t, filepath.Join(dir, "out", "corrections_tiny.csv"), export.CorrectionColumn)
	assert.Empty(t, tiny)
	assert.Empty(t, report.Datasets[0].Thresholds[0].Corrections)

	d := loadScores(t, filepath.Join(dir, "out", "corrections_d.csv"), export.CorrectionColumn)
	composite := loadScores(t, filepath.Join(dir, "out", "composite.csv"), export.CompositeColumn)
	assert.Equal(t, d, composite)
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeInputs(t, dir)
	p, err := plan.Parse([]byte(pipelinePlan), dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := New(nil, Options{}).Run(ctx, "plan.yaml", p)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)
	assert.Equal(t, model.RunStatusFailed, report.Run.Status)
	assert.NoFileExists(t, filepath.Join(dir, "out", "composite.csv"))
}
