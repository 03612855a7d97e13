package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/orchestrator/internal/core/domain"
	"github.com/vietddude/orchestrator/internal/infra/storage"
	"github.com/vietddude/orchestrator/internal/infra/storage/postgres"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show failed blocks and recent invocations",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of rows per table")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, closeLog := loadConfig()
	defer closeLog()

	if cfg.Database.URL == "" {
		slog.Error("status requires database.url")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	err = printStatus(ctx, os.Stdout, cfg.Orchestrator.Channel, statusLimit,
		postgres.NewFailedBlockRepo(db), postgres.NewInvocationRepo(db))
	if err != nil {
		slog.Error("Failed to query status", "error", err)
		os.Exit(1)
	}
}

// printStatus writes the failed-block and invocation tables to out.
func printStatus(ctx context.Context, out io.Writer, channel string, limit int,
	failedRepo storage.FailedBlockRepository, invocationRepo storage.InvocationRepository) error {
	failed, err := failedRepo.GetAll(ctx, channel, limit)
	if err != nil {
		return fmt.Errorf("failed to query failed blocks: %w", err)
	}
	total, err := failedRepo.Count(ctx, channel)
	if err != nil {
		return fmt.Errorf("failed to count failed blocks: %w", err)
	}

	_, _ = fmt.Fprintf(out, "Failed blocks on %s (%d total)\n", channel, total)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "BLOCK\tTYPE\tERROR\tAT")
	for _, fb := range failed {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", fb.BlockNumber, fb.FailureType, fb.Error, fb.CreatedAt.Format(time.RFC3339))
	}
	_ = w.Flush()

	recent, err := invocationRepo.Recent(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to query invocations: %w", err)
	}
	counts, err := invocationRepo.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to count invocations: %w", err)
	}

	_, _ = fmt.Fprintf(out, "\nRecent invocations (%d succeeded, %d failed)\n", counts[domain.InvocationStatusSucceeded], counts[domain.InvocationStatusFailed])
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "BLOCK\tEVENT\tSTATUS\tTRANSACTION\tDURATION\tERROR")
	for _, inv := range recent {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			inv.BlockNumber, inv.EventName, inv.Status, inv.TransactionID, inv.Duration(), inv.Error)
	}
	return w.Flush()
}
