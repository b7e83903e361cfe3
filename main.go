package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tournevent/sendparcel/internal/server"
	"github.com/tournevent/sendparcel/pkg/retry"
	"github.com/tournevent/sendparcel/pkg/shipment"
	"go.uber.org/zap"
)

var version = "0.0.1"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "sendparcel",
	Short:   "Sendparcel - shipment lifecycle and callback retry service",
	Version: version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and retry worker",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := initLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	tracer, tracerShutdown, err := initTracer(ctx, cfg)
	if err != nil {
		logger.Warn("Failed to initialize tracer", zap.Error(err))
	} else {
		defer tracerShutdown(ctx)
	}

	registry := initProviderRegistry(cfg, logger, tracer)

	// Reference in-memory stores; real deployments plug their own
	// repository and retry store in here.
	repo := shipment.NewMemoryRepository()
	retryStore := retry.NewMemoryStore(cfg.RetryBackoffSeconds)

	flow := shipment.NewFlow(registry, repo, retryStore, logger)
	processor := retry.NewProcessor(retry.ProcessorConfig{
		MaxAttempts:    cfg.RetryMaxAttempts,
		BackoffSeconds: cfg.RetryBackoffSeconds,
	}, retryStore, repo, flow, logger)

	logger.Info("Starting sendparcel",
		zap.Int("port", cfg.Port),
		zap.String("version", cfg.Version),
		zap.Strings("providers", registry.Slugs()),
	)

	srv := server.New(server.Config{
		Port:            cfg.Port,
		DefaultProvider: cfg.DefaultProvider,
		RetryInterval:   cfg.RetryInterval(),
		RetryBatchSize:  cfg.RetryBatchSize,
	}, server.Deps{
		Registry:      registry,
		Repository:    repo,
		Flow:          flow,
		OrderResolver: initOrderResolver(),
		Processor:     processor,
	}, logger)

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
