package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/orchestrator/internal/control"
	"github.com/vietddude/orchestrator/internal/core/config"
	"github.com/vietddude/orchestrator/internal/core/logger"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Fabric block-event orchestrator",
	Long: `Orchestrator subscribes to committed Fabric blocks and issues one
chaincode invocation for every named chaincode event it finds.`,
	Run: runOrchestrator,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig loads .env and the YAML config and installs the logger.
func loadConfig() (*config.AppConfig, func()) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	closer := logger.Init(cfg.Logging, isDebug)
	return cfg, func() { _ = closer.Close() }
}

func loadIdentity() config.Identity {
	id, err := config.LoadIdentity()
	if err != nil {
		slog.Error("Failed to read identity", "error", err)
		os.Exit(1)
	}
	return id
}

func runOrchestrator(cmd *cobra.Command, args []string) {
	cfg, closeLog := loadConfig()
	defer closeLog()

	app, err := control.NewApp(cfg, loadIdentity())
	if err != nil {
		slog.Error("Failed to initialize orchestrator", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start orchestrator", "error", err)
		os.Exit(1)
	}

	slog.Info("Orchestrator started", "config", cfgPath, "armed", app.Armed())

	exitCode := 0
	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down...", "signal", sig)
	case <-app.Done():
		slog.Error("Orchestrator stopped unexpectedly", "error", app.Err())
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		exitCode = 1
	}
	if exitCode != 0 {
		closeLog()
		os.Exit(exitCode)
	}
}
