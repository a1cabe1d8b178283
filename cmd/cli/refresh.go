package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kosarica/feed-service/internal/sweepers"
)

var (
	refreshTenant string
	refreshFeed   string
	refreshStale  bool
)

// refreshCmd represents the refresh command
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-import remote feeds with their stored mapping",
	Long: `Refresh one remote feed, or with --stale run a single pass of the background
refresh sweep over every feed not updated within refresh.stale_after.
A refresh never waits for a mapping: feeds without one fail.`,
	Example: `  feed-service refresh --tenant acme --feed 6f1c...
  feed-service refresh --stale`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().StringVar(&refreshTenant, "tenant", "", "Tenant ID")
	refreshCmd.Flags().StringVar(&refreshFeed, "feed", "", "Feed ID")
	refreshCmd.Flags().BoolVar(&refreshStale, "stale", false, "Refresh every stale feed once")
	refreshCmd.MarkFlagsRequiredTogether("tenant", "feed")
	refreshCmd.MarkFlagsMutuallyExclusive("feed", "stale")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	svc, err := services(ctx)
	if err != nil {
		return err
	}

	if refreshStale {
		sweeper := sweepers.NewRefreshSweeper(
			svc.Feeds,
			svc.Pipeline,
			&logger,
			cfg.Refresh.Interval,
			cfg.Refresh.StaleAfter,
			cfg.Refresh.BatchSize,
		)
		n, err := sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Refreshed %d feeds\n", n)
		return nil
	}

	if refreshFeed == "" {
		return fmt.Errorf("either --tenant with --feed or --stale is required")
	}
	res, err := svc.Pipeline.Refresh(ctx, refreshTenant, refreshFeed)
	if err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	outputImportTable(res)
	return nil
}
