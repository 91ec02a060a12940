// Command analytics-worker consumes analysis requests from AMQP and runs the
// scheduled per-user analyses.
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finsight/internal/cache"
	"finsight/internal/cli"
	"finsight/internal/log"
	"finsight/internal/services"
	"finsight/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.FromContext(context.Background()).Error("Worker failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := cli.ShutdownContext(context.Background())
	defer cancel()

	app, ctx, err := cli.Bootstrap(ctx, log.ComponentWorker)
	if err != nil {
		return err
	}
	defer app.Close()
	logger := app.Logger
	logger.InfoContext(ctx, "Starting analytics-worker", log.FieldBackend, app.Config.DataBackend)

	client, err := app.ConnectAMQP(ctx)
	if err != nil {
		return err
	}
	if client == nil {
		return errors.New("AMQP_URL is required by the worker")
	}
	defer client.Close()

	analysis := app.NewAnalysisService(client)

	caches := cache.NewManager()
	caches.Register(analysis.Insights().Cleaner())
	if ttl := app.Config.InsightCacheTTL; ttl > 0 {
		caches.StartCleanup(ctx, ttl)
		defer caches.Stop()
	}

	processor := services.NewDueUserProcessor(app.Backend.Store, analysis, services.DueProcessorConfig{
		PollInterval: app.Config.PollInterval,
		Concurrency:  app.Config.Concurrency,
	})
	w := worker.NewAnalyticsWorker(analysis, processor, worker.WithInsightInvalidator(analysis.Insights()))

	if _, err := w.StartupSweep(ctx); err != nil {
		// Scheduled runs will retry on the next poll.
		logger.ErrorContext(ctx, "Startup sweep failed", log.FieldError, err)
	}

	if err := processor.Start(ctx); err != nil {
		return err
	}

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- client.ConsumeAnalysisRequests(ctx, w.HandleAnalysisRequest)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down worker")
	case err = <-consumeErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.ErrorContext(ctx, "Message consumption failed", log.FieldError, err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := processor.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown timeout reached", log.FieldError, err)
		return nil
	}
	logger.Info("Worker shutdown complete")
	return nil
}
