package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/islandways/placesync/internal/monitoring"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current run's progress and spend",
	Long:  "Reads the run checkpoint and the knowledge store, then prints the outcome breakdown, per-category counts and estimated API cost.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "status")
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.State, env.Store, cfg.Pricing)
		snap, err := collector.Collect(ctx)
		if err != nil {
			return err
		}

		if snap.RunID == "" {
			zap.L().Info("no run checkpoint found, start one with 'placesync enrich' or 'placesync acquire'")
			return nil
		}

		if statusJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}

		formatSnapshot(os.Stdout, snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw snapshot as JSON")
	rootCmd.AddCommand(statusCmd)
}

// formatSnapshot writes a tabular view of the run snapshot to w.
func formatSnapshot(out io.Writer, snap *monitoring.Snapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "RUN\t%s\n", snap.RunID)
	_, _ = fmt.Fprintf(w, "PHASE\t%s\n", snap.Phase)
	_, _ = fmt.Fprintf(w, "STARTED\t%s\n", snap.StartedAt.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintf(w, "UPDATED\t%s\n", snap.UpdatedAt.Format("2006-01-02 15:04"))
	_, _ = fmt.Fprintln(w, "\t")

	_, _ = fmt.Fprintf(w, "processed\t%d\n", snap.Processed)
	_, _ = fmt.Fprintf(w, "enriched\t%d\n", snap.Enriched)
	_, _ = fmt.Fprintf(w, "failed\t%d\n", snap.Failed)
	_, _ = fmt.Fprintf(w, "skipped\t%d\n", snap.Skipped)
	_, _ = fmt.Fprintf(w, "already enriched\t%d\n", snap.AlreadyEnriched)
	_, _ = fmt.Fprintf(w, "fail rate\t%.1f%%\n", snap.FailRate*100)
	_, _ = fmt.Fprintln(w, "\t")

	_, _ = fmt.Fprintf(w, "search calls\t%d\n", snap.SearchCalls)
	_, _ = fmt.Fprintf(w, "details calls\t%d\n", snap.DetailsCalls)
	_, _ = fmt.Fprintf(w, "estimated cost\t$%.2f\n", snap.CostUSD)
	_, _ = fmt.Fprintf(w, "store places\t%d\n", snap.StorePlaces)

	if len(snap.ByCategory) > 0 {
		_, _ = fmt.Fprintln(w, "\t")
		cats := make([]string, 0, len(snap.ByCategory))
		for c := range snap.ByCategory {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		for _, c := range cats {
			_, _ = fmt.Fprintf(w, "category %s\t%d\n", c, snap.ByCategory[c])
		}
	}

	_ = w.Flush()
}
