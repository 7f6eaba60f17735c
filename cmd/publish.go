package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catchment-cli/internal/db"
)

var (
	publishRunID   string
	publishDataset string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Copy a run's composite scores to PostGIS",
	Long: `Upserts the composite scores recorded for a run into the configured Postgres
table. Origins that matched a point with coordinates get a point geometry.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("publish"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, publishRunID)
		if err != nil {
			return eris.Wrap(err, "publish")
		}
		scores, err := st.ListScores(ctx, run.ID, publishDataset)
		if err != nil {
			return eris.Wrap(err, "publish")
		}
		if len(scores) == 0 {
			return eris.Errorf("publish: run %s has no scores", run.ID)
		}

		pool, err := db.Connect(ctx, cfg.Postgres.DatabaseURL)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := db.PublishScores(ctx, pool, db.PublishConfig{
			Schema: cfg.Postgres.Schema,
			Table:  cfg.Postgres.Table,
			SRID:   cfg.Postgres.SRID,
		}, run.ID, scores)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "published %d scores from run %s\n", n, truncateID(run.ID))
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishRunID, "run", "", "run ID to publish (required)")
	publishCmd.Flags().StringVar(&publishDataset, "dataset", "", "publish only this dataset")
	_ = publishCmd.MarkFlagRequired("run")
	rootCmd.AddCommand(publishCmd)
}
