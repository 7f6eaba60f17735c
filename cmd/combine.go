package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catchment-cli/internal/catchment"
	"github.com/sells-group/catchment-cli/internal/export"
	"github.com/sells-group/catchment-cli/internal/ingest"
	"github.com/sells-group/catchment-cli/internal/plan"
)

var (
	combineCorrections []string
	combineMatches     []string
	combineOut         string
)

var combineCmd = &cobra.Command{
	Use:   "combine",
	Short: "Sum correction tables and match results into a composite score",
	Long: `Builds a composite accessibility score from correction tables written by
earlier runs plus any number of external match-result columns. Origins missing
from a table contribute 0.

Examples:
  catchment combine --correction out/corrections_d.csv --correction out/corrections_e.csv \
    --match m1.csv:OriginID:匹配结果1 --out composite.csv`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if len(combineCorrections) == 0 && len(combineMatches) == 0 {
			return eris.New("combine: at least one --correction or --match is required")
		}

		var parts []catchment.Composite
		for _, path := range combineCorrections {
			vals, err := ingest.LoadValues(ctx, path, export.OriginColumn, export.CorrectionColumn, ingest.Format{})
			if err != nil {
				return eris.Wrapf(err, "combine: load %s", path)
			}
			parts = append(parts, vals)
		}
		for _, arg := range combineMatches {
			m, err := parseMatch(arg)
			if err != nil {
				return err
			}
			vals, err := ingest.LoadValues(ctx, m.Source, m.IDColumn, m.ValueColumn, m.Format)
			if err != nil {
				return eris.Wrapf(err, "combine: load %s", m.Source)
			}
			parts = append(parts, vals)
		}

		composite := catchment.Combine(nil, parts...)
		scores := composite.Scores()
		if err := export.WriteComposite(combineOut, scores, export.Options{BOM: cfg.Catchment.OutputBOM}); err != nil {
			return err
		}

		zap.L().Info("combine: wrote composite",
			zap.String("path", combineOut),
			zap.Int("tables", len(parts)),
			zap.Int("origins", len(scores)),
		)
		fmt.Fprintf(os.Stdout, "wrote %d origins to %s\n", len(scores), combineOut)
		return nil
	},
}

func init() {
	combineCmd.Flags().StringArrayVar(&combineCorrections, "correction", nil, "correction table (OriginID,AccessibilityCorrection); repeatable")
	combineCmd.Flags().StringArrayVar(&combineMatches, "match", nil, "match result as file:id_column:value_column; repeatable")
	combineCmd.Flags().StringVar(&combineOut, "out", "composite.csv", "composite output path")
	rootCmd.AddCommand(combineCmd)
}

// parseMatch parses "file:id_column:value_column". The id column may be left
// empty ("file::value") to use OriginID.
func parseMatch(s string) (plan.Match, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return plan.Match{}, eris.Errorf("combine: invalid --match %q, want file:id_column:value_column", s)
	}
	value := s[i+1:]
	rest := s[:i]
	j := strings.LastIndex(rest, ":")
	if j <= 0 {
		return plan.Match{}, eris.Errorf("combine: invalid --match %q, want file:id_column:value_column", s)
	}
	m := plan.Match{Source: rest[:j], IDColumn: rest[j+1:], ValueColumn: value}
	if m.IDColumn == "" {
		m.IDColumn = export.OriginColumn
	}
	return m, nil
}
