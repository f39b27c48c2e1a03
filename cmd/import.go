package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importInput string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a seed feed into the knowledge store",
	Long:  "Loads place records from a CSV, JSON or XLSX feed (local file, HTTP or FTP) and upserts them into the knowledge store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := loadRecords(ctx, env.Store, importInput)
		if err != nil {
			return err
		}

		total, err := env.Store.CountPlaces(ctx)
		if err != nil {
			return eris.Wrap(err, "count places")
		}

		zap.L().Info("import complete",
			zap.Int("imported", len(records)),
			zap.Int64("store_total", total),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importInput, "input", "", "feed path or URL (required)")
	_ = importCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(importCmd)
}
