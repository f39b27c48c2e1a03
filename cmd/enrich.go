package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/enrich"
)

var (
	enrichInput    string
	enrichCategory string
	enrichLimit    int
	enrichDryRun   bool
	enrichResume   bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Match and enrich place records against the directory",
	Long:  "Runs the record set through search, match scoring, details fetch and merge. Per-record failures are recorded and never stop the run; an interrupted run continues from its checkpoint with --resume.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "enrich")
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := loadRecords(ctx, env.Store, enrichInput)
		if err != nil {
			return err
		}

		orch, err := enrich.New(enrich.Config{
			MinConfidence: cfg.Enrich.MinConfidence,
			SaveInterval:  cfg.State.SaveInterval,
			Limit:         enrichLimit,
			Category:      enrichCategory,
			DryRun:        enrichDryRun,
			Resume:        enrichResume,
			RefreshAfter:  time.Duration(cfg.Enrich.RefreshAfterHrs) * time.Hour,
			BiasRadius:    cfg.Enrich.BiasRadiusMeters,
			MaxResults:    cfg.Enrich.MaxResults,
			CacheTTL:      time.Duration(cfg.Enrich.CacheTTLMinutes) * time.Minute,
		}, env.Client, env.State,
			enrich.WithStore(env.Store),
			enrich.WithRegions(env.Regions),
			enrich.WithRates(cfg.Pricing),
		)
		if err != nil {
			return err
		}

		summary, runErr := orch.Run(ctx, records)
		if summary != nil {
			zap.L().Info("enrichment run finished",
				zap.String("run_id", summary.RunID),
				zap.Int("enriched", summary.Enriched),
				zap.Int("failed", summary.Failed),
				zap.Int("skipped", summary.Skipped),
				zap.Int("already_enriched", summary.AlreadyEnriched),
				zap.Float64("estimated_cost_usd", summary.EstimatedCost),
				zap.Bool("partial", summary.Partial),
			)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return eris.Wrap(err, "encode summary")
			}
		}
		return runErr
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichInput, "input", "", "seed feed path or URL (default: records already in the store)")
	enrichCmd.Flags().StringVar(&enrichCategory, "category", "", "restrict the run to one category")
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 0, "max records this run (0 = all)")
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "report plan and estimated cost, no network calls")
	enrichCmd.Flags().BoolVar(&enrichResume, "resume", false, "continue from the saved checkpoint")
	rootCmd.AddCommand(enrichCmd)
}
