package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/config"
	"github.com/islandways/placesync/internal/cost"
)

var cfg *config.Config

var (
	rootStateDir  string
	rootRatesFile string
)

var rootCmd = &cobra.Command{
	Use:   "placesync",
	Short: "Place directory matching and enrichment pipeline",
	Long:  "Seeds curated place records from feeds, reconciles them against the place directory via search and details calls, and serves run progress over HTTP.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if rootStateDir != "" {
			cfg.State.Dir = rootStateDir
		}
		if rootRatesFile != "" {
			r, err := cost.LoadRates(rootRatesFile)
			if err != nil {
				return fmt.Errorf("load rates: %w", err)
			}
			cfg.Pricing = r
		}

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

func init() {
	rootCmd.PersistentFlags().StringVar(&rootStateDir, "state-dir", "", "checkpoint directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&rootRatesFile, "rates", "", "pricing rates YAML (overrides config pricing)")
}
