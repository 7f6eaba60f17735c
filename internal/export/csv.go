// Package export writes pipeline results as CSV and GeoJSON files.
package export

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/catchment-cli/internal/model"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Float formats without exponent so spreadsheet tools read it as a number.
type Float float64

// MarshalText implements encoding.TextMarshaler.
func (f Float) MarshalText() ([]byte, error) {
	return []byte(strconv.FormatFloat(float64(f), 'f', -1, 64)), nil
}

type facilityRow struct {
	FacilityID  string `csv:"FacilityID"`
	DemandTotal Float  `csv:"DemandTotal"`
}

// correctionRow leaves Correction blank (nil) for origins whose only links
// go to facilities with an undefined ratio.
type correctionRow struct {
	OriginID   string `csv:"OriginID"`
	Correction *Float `csv:"AccessibilityCorrection"`
}

type compositeRow struct {
	OriginID string `csv:"OriginID"`
	Score    Float  `csv:"CompositeAccessibilityScore"`
}

// Header names of the correction and composite tables, for readers that
// re-combine previously written outputs.
const (
	CorrectionColumn = "AccessibilityCorrection"
	CompositeColumn  = "CompositeAccessibilityScore"
	OriginColumn     = "OriginID"
)

// Options controls how files are written.
type Options struct {
	// BOM prefixes output with a UTF-8 byte order mark.
	BOM bool
}

// WriteFacilityDemand writes the per-threshold facility demand table.
// Facilities with an undefined ratio are kept with their zero demand.
func WriteFacilityDemand(path string, facilities []model.FacilityDemand, opts Options) error {
	rows := make([]facilityRow, len(facilities))
	for i, f := range facilities {
		rows[i] = facilityRow{FacilityID: f.FacilityID, DemandTotal: Float(f.DemandTotal)}
	}
	return writeRows(path, rows, []string{"FacilityID", "DemandTotal"}, opts)
}

// WriteCorrections writes the per-threshold origin correction table. An
// origin linked only to undefined-ratio facilities gets a blank cell so it
// stays distinguishable from a computed zero; readers treat blank as 0.
func WriteCorrections(path string, corrections []model.OriginCorrection, opts Options) error {
	rows := make([]correctionRow, len(corrections))
	for i, c := range corrections {
		rows[i] = correctionRow{OriginID: c.OriginID}
		if !c.Undefined() {
			v := Float(c.Correction)
			rows[i].Correction = &v
		}
	}
	return writeRows(path, rows, []string{OriginColumn, CorrectionColumn}, opts)
}

// WriteComposite writes the combined score table.
func WriteComposite(path string, scores []model.CompositeScore, opts Options) error {
	rows := make([]compositeRow, len(scores))
	for i, s := range scores {
		rows[i] = compositeRow{OriginID: s.OriginID, Score: Float(s.Score)}
	}
	return writeRows(path, rows, []string{OriginColumn, CompositeColumn}, opts)
}

func writeRows[T any](path string, rows []T, header []string, opts Options) error {
	var data []byte
	if len(rows) == 0 {
		// csvutil cannot derive a header from an empty slice.
		data = []byte(joinHeader(header))
	} else {
		var err error
		data, err = csvutil.Marshal(rows)
		if err != nil {
			return eris.Wrapf(err, "export: encode %s", path)
		}
	}
	return writeFile(path, data, opts)
}

func joinHeader(cols []string) string {
	var b bytes.Buffer
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c)
	}
	b.WriteByte('\n')
	return b.String()
}

// writeFile replaces path atomically. Concurrent writers to the same path
// do not interleave; the last rename wins.
func writeFile(path string, data []byte, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}

	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return eris.Wrapf(err, "export: create temp for %s", path)
	}
	tmp := f.Name()

	if opts.BOM {
		_, err = f.Write(utf8BOM)
	}
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "export: write %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "export: replace %s", path)
	}
	return nil
}
