package cli

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/orchestrator/internal/control"
	"github.com/vietddude/orchestrator/internal/infra/subscription"
)

var replayCmd = &cobra.Command{
	Use:   "replay [block.json...]",
	Short: "Run block files through the pipeline and issue their invocations",
	Args:  cobra.MinimumNArgs(1),
	Run:   runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) {
	cfg, closeLog := loadConfig()
	defer closeLog()

	app, err := control.NewApp(cfg, loadIdentity(),
		control.WithSubscriber(subscription.NewReplay(slog.Default(), args...)),
		control.WithoutHealthServer(),
	)
	if err != nil {
		slog.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}
	if !app.Armed() {
		return
	}

	if err := app.Start(context.Background()); err != nil {
		slog.Error("Failed to start replay", "error", err)
		os.Exit(1)
	}
	<-app.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	stopErr := app.Stop(ctx)

	stats := app.Pipeline().Stats()
	slog.Info("Replay finished",
		"blocks", stats.BlocksProcessed,
		"failed_blocks", stats.BlocksFailed,
		"invocations", stats.EventsQualified,
	)
	if err := app.Err(); err != nil {
		slog.Error("Replay failed", "error", err)
		os.Exit(1)
	}
	if stopErr != nil {
		slog.Error("Error during shutdown", "error", stopErr)
		os.Exit(1)
	}
}
