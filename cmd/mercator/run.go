package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"mercator-hq/jupiter/pkg/cli"
	"mercator-hq/jupiter/pkg/config"
	"mercator-hq/jupiter/pkg/core"
	"mercator-hq/jupiter/pkg/core/accounting"
	"mercator-hq/jupiter/pkg/security/auth"
	"mercator-hq/jupiter/pkg/security/secrets"
	"mercator-hq/jupiter/pkg/telemetry/health"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	accountingDB  string
	secretPrefix  string
	retainFor     time.Duration
	sweepSchedule string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The server listens on the configured address and dispatches OpenAI-dialect
requests across the configured instances: routing, health-aware retry,
format conversion and accounting all run inline in the request path.

Examples:
  # Start with default config
  mercator run

  # Start with custom config
  mercator run --config /etc/mercator/gateway.yaml

  # Override listen address
  mercator run --listen 0.0.0.0:8080

  # Validate config without starting the server
  mercator run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
	runCmd.Flags().StringVar(&runFlags.accountingDB, "accounting-db", "", "override accounting database path")
	runCmd.Flags().StringVar(&runFlags.secretPrefix, "secret-prefix", "MERCATOR_SECRET_", "environment variable prefix for OAuth secrets")
	runCmd.Flags().DurationVar(&runFlags.retainFor, "accounting-retain", 30*24*time.Hour, "how long accounting events are kept before the sweeper compacts them")
	runCmd.Flags().StringVar(&runFlags.sweepSchedule, "sweep-schedule", "0 15 * * *", "cron schedule for the accounting compaction sweep")
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := newLogger(runFlags.logLevel)
	slog.SetDefault(logger)

	providers, rules, principals, defaultProvider, listenAddress, err := config.Load(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}
	if runFlags.listenAddress != "" {
		listenAddress = runFlags.listenAddress
	}

	if runFlags.dryRun {
		fmt.Printf("✓ Configuration valid (%d provider groups, %d routing rules, %d principals)\n",
			len(providers), len(rules), len(principals))
		return nil
	}

	registry := core.NewRegistry(providers, rules, defaultProvider)

	authResolver := auth.NewResolver(principals)

	watcher, err := config.NewWatcher(cfgFile, registry, authResolver)
	if err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	oauthSource := secrets.NewOAuthSource(secrets.NewEnvProvider(runFlags.secretPrefix))

	accountingCfg := accounting.DefaultConfig()
	if runFlags.accountingDB != "" {
		accountingCfg.Path = runFlags.accountingDB
	}
	accountingSink, err := accounting.NewSink(accountingCfg)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("open accounting store: %w", err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := accountingSink.Close(closeCtx); err != nil {
			logger.Error("accounting sink close failed", "error", err)
		}
	}()

	dispatcher := core.NewDispatcher(registry, authResolver, oauthSource, accountingSink)
	dispatcher.Logger = logger.With("component", "core.dispatch")

	checker := health.New(5 * time.Second)
	checker.RegisterCheck("registry", func(ctx context.Context) error {
		snap := registry.Snapshot()
		if snap.ProviderCount() == 0 {
			return errors.New("no providers configured")
		}
		return nil
	})
	handlers := checker.CreateHandlers(Version, GitCommit, BuildDate)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", dispatcher.ServeHTTP)
	for provider := range providers {
		mux.HandleFunc("/v1/"+provider+"/chat/completions", dispatcher.ServeHTTPWithProvider(provider))
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", handlers.LivenessHandler)
	mux.HandleFunc("/ready", handlers.ReadinessHandler)
	mux.HandleFunc("/version", handlers.VersionHandler)

	sweeper := core.NewSweeper()
	if err := sweeper.AddJob("accounting-compact", runFlags.sweepSchedule, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		deleted, err := accountingSink.Compact(ctx, runFlags.retainFor)
		if err != nil {
			return err
		}
		logger.Info("accounting compaction complete", "deleted", deleted)
		return nil
	}); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("schedule accounting sweep: %w", err))
	}
	if err := sweeper.AddJob("metrics-sample", "@every 15s", func() error {
		core.SetSessionTableSize(dispatcher.Balancer.SessionCount())
		core.SetAccountingQueueDepth("sqlite", accountingSink.QueueDepth())
		return nil
	}); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("schedule metrics sample: %w", err))
	}
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{
		Addr:    listenAddress,
		Handler: mux,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "address", listenAddress)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Printf("✓ Server listening on %s\n", listenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", listenAddress)
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", listenAddress)
	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Server stopped")
		return nil
	}
}

func newLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
