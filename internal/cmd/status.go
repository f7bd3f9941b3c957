package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/adoptfeed/adoptfeed/internal/ingest"
	"github.com/adoptfeed/adoptfeed/internal/storage"
)

// statusHistoryWindow bounds how far back the status view reads runs.
const statusHistoryWindow = 30 * 24 * time.Hour

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent run health, alerts and failure rates per source",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().Int("runs", 5, "Number of recent runs to show per source")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	recentRuns, _ := cmd.Flags().GetInt("runs")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	classifier := ingest.NewClassifier(cfg.Thresholds)
	now := time.Now().UTC()
	ctx := cmd.Context()

	for _, src := range cfg.Sources {
		history, err := store.RunHistory(ctx, src.OrganizationID, now.Add(-statusHistoryWindow))
		if err != nil {
			return fmt.Errorf("failed to read run history for %s: %w", src.ID, err)
		}

		fmt.Printf("Source %s (organization %s)\n", src.ID, src.OrganizationID)
		if len(history) == 0 {
			fmt.Printf("  no completed runs in the last %d days\n\n", int(statusHistoryWindow.Hours()/24))
			continue
		}

		for i, run := range history {
			if i >= recentRuns {
				break
			}
			fmt.Printf("  %s  %-7s  found=%-3d added=%-3d updated=%-3d skipped=%-3d quality=%.2f  %s\n",
				run.StartedAt.Format("2006-01-02 15:04"),
				run.Status, run.RecordsFound, run.RecordsAdded, run.RecordsUpdated,
				run.RecordsSkipped, run.DataQualityScore, run.ErrorMessage)
		}

		rates := classifier.Rates(history, now)
		fmt.Printf("  failure rates: 24h=%.0f%% 7d=%.0f%% 30d=%.0f%%\n",
			rates.Day*100, rates.Week*100, rates.Month*100)

		for _, alert := range classifier.Alerts(src.OrganizationID, history, now) {
			fmt.Printf("  ALERT [%s] %s: %s\n", alert.Severity, alert.Type, alert.Message)
		}
		fmt.Println()
	}
	return nil
}
