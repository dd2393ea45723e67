package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"sjsage522/placereview/config"
	"sjsage522/placereview/helpers"
	"sjsage522/placereview/logger"
	"sjsage522/placereview/services/worker"
)

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:           "placereview",
	Short:         "Naver place review collector and sentiment worker",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load environment variables
		godotenv.Load()

		logger.Init()

		cfg = config.LoadConfig()
		return cfg.Validate()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scrapeCmd)
	rootCmd.AddCommand(deleteCmd)
}

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume scrape jobs until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.Default

		ctx, cancel := signalContext()
		defer cancel()

		deps, err := initializeServices(ctx, cfg, withStore|withQueue|withCache|withBrowser|withAnalyzer)
		if err != nil {
			return err
		}
		defer deps.Cleanup()

		log.Info().
			Str("environment", cfg.Environment).
			Int("concurrency", cfg.WorkerConcurrency).
			Int("browser_sessions", cfg.BrowserSessions).
			Str("driver", cfg.BrowserDriver).
			Msg("Starting application")

		errLog := helpers.NewLogger(cfg.ErrorLogFile, logger.ForWorker())
		proc := worker.NewProcessor(deps.Store, deps.Scraper, deps.Analyzer, deps.Progress, errLog).
			WithLeaseTTL(cfg.JobLease)
		w := worker.NewWorker(deps.Queue, proc, errLog, cfg.WorkerConcurrency)

		w.Start(ctx)

		log.Info().Msg("Shutting down gracefully...")
		return nil
	},
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
