package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/catchment-cli/internal/export"
	"github.com/sells-group/catchment-cli/internal/pipeline"
	"github.com/sells-group/catchment-cli/internal/plan"
)

var (
	runPlanPath    string
	runDatasets    int
	runThresholds  int
	runNoBOM       bool
	runFailOnError bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every dataset and threshold of a plan",
	Long: `Reads a YAML run plan and computes accessibility for every dataset.

Each threshold writes a facility demand table and an origin correction table;
each dataset then writes its composite score and, when a point layer is set,
the joined CSV and GeoJSON. The run is recorded in the ledger.

Examples:
  catchment run --plan plan.yaml
  catchment run --plan plan.yaml --datasets 4 --thresholds 2`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyRunFlags(cmd)
		if err := cfg.Validate("run"); err != nil {
			return err
		}

		p, err := plan.Load(cfg.Catchment.PlanPath)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		pl := pipeline.New(st, pipeline.Options{
			DatasetLimit:   cfg.Catchment.MaxConcurrentDatasets,
			ThresholdLimit: cfg.Catchment.MaxConcurrentThresholds,
			Export:         export.Options{BOM: cfg.Catchment.OutputBOM},
		})
		report, err := pl.Run(ctx, cfg.Catchment.PlanPath, p)
		if report != nil {
			printReport(report)
		}
		if err != nil {
			return err
		}
		if runFailOnError && report.Failed() > 0 {
			return eris.Errorf("run: %d of %d datasets failed", report.Failed(), len(report.Datasets))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runPlanPath, "plan", "", "path to run plan YAML (default from config)")
	runCmd.Flags().IntVar(&runDatasets, "datasets", 0, "max datasets to run concurrently (default from config)")
	runCmd.Flags().IntVar(&runThresholds, "thresholds", 0, "max thresholds per dataset to run concurrently (default from config)")
	runCmd.Flags().BoolVar(&runNoBOM, "no-bom", false, "write output CSVs without a UTF-8 BOM")
	runCmd.Flags().BoolVar(&runFailOnError, "fail-on-error", false, "exit non-zero when any dataset fails")
	rootCmd.AddCommand(runCmd)
}

// applyRunFlags lets explicit flags override config values.
func applyRunFlags(cmd *cobra.Command) {
	if runPlanPath != "" {
		cfg.Catchment.PlanPath = runPlanPath
	}
	if runDatasets > 0 {
		cfg.Catchment.MaxConcurrentDatasets = runDatasets
	}
	if runThresholds > 0 {
		cfg.Catchment.MaxConcurrentThresholds = runThresholds
	}
	if cmd.Flags().Changed("no-bom") {
		cfg.Catchment.OutputBOM = !runNoBOM
	}
}

func printReport(r *pipeline.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Run:\t%s (%s)\n", r.Run.ID, r.Run.Status)
	_, _ = fmt.Fprintln(w, "DATASET\tTHRESHOLDS\tORIGINS\tPOINTS\tUNMATCHED\tERROR")
	for _, d := range r.Datasets {
		var done int
		for _, t := range d.Thresholds {
			if t != nil {
				done++
			}
		}
		errText := ""
		if d.Err != nil {
			errText = d.Err.Error()
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			d.Name, done, len(d.Scores), d.JoinedPoints, d.UnmatchedPoints, errText)
	}
	_ = w.Flush()
}
