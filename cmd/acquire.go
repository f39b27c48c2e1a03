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

	"github.com/islandways/placesync/internal/acquire"
)

var (
	acquireInput   string
	acquireWorkers int
	acquireLimit   int
	acquireResume  bool
)

// acquireResult is the pool summary plus the wire-call bill, which lives
// in the session factory rather than the pool.
type acquireResult struct {
	*acquire.Summary
	SearchCalls   int64   `json:"search_calls"`
	DetailsCalls  int64   `json:"details_calls"`
	EstimatedCost float64 `json:"estimated_cost_usd"`
}

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Acquire place data through a pool of directory sessions",
	Long:  "Drains the record set through parallel workers, each owning its own session. Every record walks its fallback query strategies in order: exact coordinates, name+category+region, name+region, address.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "acquire")
		if err != nil {
			return err
		}
		defer env.Close()

		records, err := loadRecords(ctx, env.Store, acquireInput)
		if err != nil {
			return err
		}

		factory, err := acquire.NewDirectoryFactory(acquire.DirectoryConfig{
			APIKey:         cfg.Directory.APIKey,
			BaseURL:        cfg.Directory.BaseURL,
			RequestsPerSec: cfg.Directory.RequestsPerSec,
			MaxRetries:     cfg.Directory.MaxRetries,
			MinConfidence:  cfg.Enrich.MinConfidence,
			BiasRadius:     cfg.Enrich.BiasRadiusMeters,
			MaxResults:     cfg.Enrich.MaxResults,
		}, env.Regions)
		if err != nil {
			return err
		}

		workers := acquireWorkers
		if workers == 0 {
			workers = cfg.Acquire.Workers
		}

		pool, err := acquire.New(acquire.Config{
			Workers:      workers,
			SaveInterval: cfg.State.SaveInterval,
			Limit:        acquireLimit,
			Resume:       acquireResume,
			RefreshAfter: time.Duration(cfg.Enrich.RefreshAfterHrs) * time.Hour,
			Delay:        time.Duration(cfg.Acquire.DelayMs) * time.Millisecond,
			Jitter:       time.Duration(cfg.Acquire.JitterMs) * time.Millisecond,
		}, factory.Session, env.State, acquire.WithStore(env.Store))
		if err != nil {
			return err
		}

		sum, runErr := pool.Run(ctx, records)
		if sum != nil {
			counts := factory.Counts()
			zap.L().Info("acquisition run finished",
				zap.String("run_id", sum.RunID),
				zap.Int("acquired", sum.Acquired),
				zap.Int("failed", sum.Failed),
				zap.Int("skipped", sum.Skipped),
				zap.Int64("search_calls", counts.Search),
				zap.Int64("details_calls", counts.Details),
				zap.Bool("partial", sum.Partial),
			)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(acquireResult{
				Summary:       sum,
				SearchCalls:   counts.Search,
				DetailsCalls:  counts.Details,
				EstimatedCost: env.Calc.ForCounts(counts),
			}); err != nil {
				return eris.Wrap(err, "encode summary")
			}
		}
		return runErr
	},
}

func init() {
	acquireCmd.Flags().StringVar(&acquireInput, "input", "", "seed feed path or URL (default: records already in the store)")
	acquireCmd.Flags().IntVar(&acquireWorkers, "workers", 0, "parallel sessions (default from config)")
	acquireCmd.Flags().IntVar(&acquireLimit, "limit", 0, "max records this run (0 = all)")
	acquireCmd.Flags().BoolVar(&acquireResume, "resume", false, "continue from the saved checkpoint")
	rootCmd.AddCommand(acquireCmd)
}
