package export

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catchment-cli/internal/model"
)

// JoinedPoint is a point with its composite score, if it had one.
type JoinedPoint struct {
	model.Point
	Score *float64
}

// JoinPoints left-joins scores onto points by identifier. Points without a
// score keep a nil Score; the number of such points is returned.
func JoinPoints(points []model.Point, scores map[string]float64) ([]JoinedPoint, int) {
	out := make([]JoinedPoint, len(points))
	var unmatched int
	for i, p := range points {
		out[i] = JoinedPoint{Point: p}
		if v, ok := scores[p.ID]; ok {
			out[i].Score = &v
		} else {
			unmatched++
		}
	}
	if unmatched > 0 {
		zap.L().Warn("export: points without a composite score",
			zap.Int("unmatched", unmatched),
			zap.Int("points", len(points)),
		)
	}
	return out, unmatched
}

// WriteJoinedCSV writes every point attribute, in header order, followed by
// the composite score column. Unscored points leave the score blank.
func WriteJoinedCSV(path string, header []string, points []JoinedPoint, opts Options) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	cols := append(append([]string{}, header...), CompositeColumn)
	if err := w.Write(cols); err != nil {
		return eris.Wrap(err, "export: write joined header")
	}
	row := make([]string, len(cols))
	for _, p := range points {
		for i, h := range header {
			row[i] = p.Attributes[h]
		}
		row[len(header)] = FormatScore(p.Score)
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "export: write joined row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush joined csv")
	}
	return writeFile(path, buf.Bytes(), opts)
}

// FormatScore renders an optional score; nil is blank.
func FormatScore(s *float64) string {
	if s == nil {
		return ""
	}
	return strconv.FormatFloat(*s, 'f', -1, 64)
}
