package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/carts/internal/di"
	"github.com/hanko-field/carts/internal/platform/config"
	"github.com/hanko-field/carts/internal/platform/observability"
	"github.com/hanko-field/carts/internal/platform/secrets"
)

func main() {
	ctx := context.Background()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["CARTS_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("cartd")
	ctx = observability.WithLogger(ctx, logger)

	resolver, err := newSecretResolver(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret resolver", zap.Error(err))
	}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var vErr *config.ValidationError
		if errors.As(err, &vErr) {
			logger.Fatal("invalid configuration", zap.Strings("fields", vErr.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, baseLogger)
	if err != nil {
		logger.Fatal("failed to initialise container", zap.Error(err))
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	var wg sync.WaitGroup

	if container.EventRelay != nil {
		sub := container.Carts.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			relayLogger := logger.Named("events")
			if err := container.EventRelay.Run(runCtx, sub); err != nil && !errors.Is(err, context.Canceled) {
				relayLogger.Error("event relay stopped", zap.Error(err))
			}
		}()
	}

	sweepTicker := time.NewTicker(cfg.Cleanup.Interval)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepLogger := logger.Named("sweeper")
		for {
			select {
			case <-sweepTicker.C:
				sweepCtx, cancel := context.WithTimeout(runCtx, 5*time.Minute)
				report, err := container.Sweeper.Sweep(sweepCtx)
				cancel()
				if err != nil {
					sweepLogger.Error("cart sweep error", zap.String("runID", report.RunID), zap.Error(err))
					continue
				}
				if len(report.DeletedCartIDs) > 0 {
					sweepLogger.Info("cart sweep removed carts",
						zap.String("runID", report.RunID),
						zap.Int("count", len(report.DeletedCartIDs)),
					)
				}
			case <-runCtx.Done():
				return
			}
		}
	}()

	logger.Info("cartd started",
		zap.String("environment", cfg.Service.Environment),
		zap.String("backend", cfg.Storage.Backend),
		zap.Duration("cleanupInterval", cfg.Cleanup.Interval),
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	logger.Info("shutdown signal received; stopping workers")

	sweepTicker.Stop()
	cancelRun()
	wg.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := container.Close(closeCtx); err != nil {
		logger.Error("container close failed", zap.Error(err))
	}
}

func newSecretResolver(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Resolver, error) {
	projectID := strings.TrimSpace(env["CARTS_SECRETS_PROJECT_ID"])
	if projectID == "" {
		projectID = strings.TrimSpace(env["CARTS_FIRESTORE_PROJECT_ID"])
	}
	opts := []secrets.Option{
		secrets.WithProject(projectID),
		secrets.WithLogger(logger.Named("secrets")),
	}
	if path := strings.TrimSpace(env["CARTS_SECRETS_FALLBACK_FILE"]); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	return secrets.NewResolver(ctx, opts...)
}
