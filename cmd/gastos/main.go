package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"gastos/internal/cache"
	"gastos/internal/cli"
	apphttp "gastos/internal/http"
	"gastos/internal/log"
	"gastos/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)

	ctx, stop := cli.SignalContext()
	defer stop()

	be := cli.InitBackend(ctx, cfg, logger)
	defer cli.CloseBackend(be, logger)

	loc := cfg.Location()
	dashboard := services.NewDashboardService(be.Store, loc, logger)
	expenses := services.NewExpenseService(services.ExpenseServiceConfig{
		Store:          be.Store,
		Blobs:          be.Blobs,
		Events:         be.Events(),
		Logger:         logger,
		OnChange:       dashboard.Invalidate,
		MaxOccurrences: cfg.RecurrenceMaxOccurrences,
		Concurrency:    cfg.RecurrenceConcurrency,
	})
	files := services.NewFileService(be.Store, be.Blobs, logger)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		Store:          be.Store,
		Expenses:       expenses,
		Files:          files,
		Dashboard:      dashboard,
		Logger:         logger,
		RateLimit:      cfg.RateLimit,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	caches := cache.NewManager(logger)
	dashboard.RegisterCaches(caches)
	srv.RegisterCaches(caches)
	caches.StartCleanup(time.Minute)
	defer caches.Stop()

	if cli.SweepsInProcess(cfg, be) {
		reconciler := cli.NewReconciler(cfg, be, logger)
		if err := reconciler.Start(ctx); err != nil {
			logger.Error("Failed to start reconciler", log.FieldError, err)
			os.Exit(1)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := reconciler.Stop(stopCtx); err != nil {
				logger.Warn("Reconciler stop failed", log.FieldError, err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting gastos server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"timezone", loc.String(),
			"events", be.AMQP != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err)
	}
	logger.Info("Server stopped gracefully")
}
