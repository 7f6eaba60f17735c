package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catchment-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "catchment",
	Short: "Gaussian 2SFCA accessibility scoring",
	Long:  "Filters OD distance tables by threshold, applies Gaussian distance decay, computes facility supply-to-demand ratios and sums per-origin accessibility across thresholds.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
