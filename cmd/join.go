package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catchment-cli/internal/export"
	"github.com/sells-group/catchment-cli/internal/ingest"
)

var (
	joinScores   string
	joinPoints   string
	joinIDColumn string
	joinXColumn  string
	joinYColumn  string
	joinOut      string
	joinGeoJSON  string
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Attach composite scores to a point layer",
	Long: `Left-joins a composite score table onto a point table (CSV, XLSX or point
shapefile) by origin ID. Points without a score keep a blank score column.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		scores, err := ingest.LoadValues(ctx, joinScores, export.OriginColumn, export.CompositeColumn, ingest.Format{})
		if err != nil {
			return err
		}

		cols := ingest.DefaultColumns().Points
		if joinIDColumn != "" {
			cols.ID = joinIDColumn
		}
		if joinXColumn != "" {
			cols.X = joinXColumn
		}
		if joinYColumn != "" {
			cols.Y = joinYColumn
		}
		points, header, err := ingest.LoadPoints(ctx, joinPoints, cols)
		if err != nil {
			return err
		}

		joined, unmatched := export.JoinPoints(points, scores)
		if err := export.WriteJoinedCSV(joinOut, header, joined, export.Options{BOM: cfg.Catchment.OutputBOM}); err != nil {
			return err
		}
		if joinGeoJSON != "" {
			n, err := export.WriteGeoJSON(joinGeoJSON, joined)
			if err != nil {
				return err
			}
			zap.L().Info("join: wrote geojson", zap.String("path", joinGeoJSON), zap.Int("features", n))
		}

		fmt.Fprintf(os.Stdout, "joined %d points (%d without score) to %s\n", len(joined), unmatched, joinOut)
		return nil
	},
}

func init() {
	joinCmd.Flags().StringVar(&joinScores, "scores", "", "composite score table (required)")
	joinCmd.Flags().StringVar(&joinPoints, "points", "", "point table or shapefile (required)")
	joinCmd.Flags().StringVar(&joinIDColumn, "id-column", "", "point id column (default OID_)")
	joinCmd.Flags().StringVar(&joinXColumn, "x-column", "", "x coordinate column for non-shapefile points (default x)")
	joinCmd.Flags().StringVar(&joinYColumn, "y-column", "", "y coordinate column for non-shapefile points (default y)")
	joinCmd.Flags().StringVar(&joinOut, "out", "joined.csv", "joined CSV output path")
	joinCmd.Flags().StringVar(&joinGeoJSON, "geojson", "", "also write scored points as GeoJSON")
	_ = joinCmd.MarkFlagRequired("scores")
	_ = joinCmd.MarkFlagRequired("points")
	rootCmd.AddCommand(joinCmd)
}
