package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"igmonitor/pkg/config"
	"igmonitor/pkg/stats"
)

var statsLast int

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats [username]",
	Short: "Show recent run statistics",
	Long: `Show statistics for recent monitoring runs.

Without arguments the most recent runs are listed. With a username, that
account's history across runs is shown instead.`,
	Example: `  # Last 10 runs
  igmonitor stats

  # Last 30 runs
  igmonitor stats --last 30

  # One account's history
  igmonitor stats alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().IntVar(&statsLast, "last", 10, "number of runs to show")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, config.Flags{LogLevel: effectiveLogLevel()})
	if err != nil {
		return err
	}

	db, err := stats.Open(cfg.Monitor.StatsDB)
	if err != nil {
		return fmt.Errorf("failed to open stats database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()

	if len(args) == 1 {
		return printAccountHistory(ctx, db, args[0])
	}
	return printRecentRuns(ctx, db)
}

func printRecentRuns(ctx context.Context, db *stats.Store) error {
	runs, err := db.Recent(ctx, statsLast)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("%-20s %-9s %8s %10s %8s %7s\n", "STARTED", "DURATION", "ACCOUNTS", "PROCESSED", "FLAGGED", "FAILED")
	for _, run := range runs {
		label := ""
		if run.DryRun {
			label = " (dry run)"
		}
		fmt.Printf("%-20s %-9s %8d %10d %8d %7d%s\n",
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String(),
			run.Accounts,
			run.Processed,
			run.Flagged,
			run.Failed,
			label,
		)
	}
	return nil
}

func printAccountHistory(ctx context.Context, db *stats.Store, username string) error {
	records, err := db.AccountHistory(ctx, username, statsLast)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("No runs recorded for %s.\n", username)
		return nil
	}

	fmt.Printf("History for %s\n", username)
	fmt.Printf("%-8s %-8s %8s %6s %10s %8s %7s\n", "RUN", "STATUS", "FETCHED", "NEW", "PROCESSED", "FLAGGED", "ERRORS")
	for _, rec := range records {
		fmt.Printf("%-8d %-8s %8d %6d %10d %8d %7d\n",
			rec.RunID, rec.Status, rec.Fetched, rec.New, rec.Processed, rec.Flagged, rec.ItemErrs)
	}
	return nil
}
