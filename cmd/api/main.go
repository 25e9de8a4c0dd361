package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jobsturm/crm-local-sub000/internal/app"
	"github.com/jobsturm/crm-local-sub000/internal/config"
	"github.com/jobsturm/crm-local-sub000/internal/http/handler"
	"github.com/jobsturm/crm-local-sub000/internal/http/middleware"
	"github.com/jobsturm/crm-local-sub000/internal/http/router"
	"github.com/jobsturm/crm-local-sub000/internal/jobs"
	"github.com/jobsturm/crm-local-sub000/internal/logger"
	"go.uber.org/zap"
)

// backupTimeout bounds one scheduled snapshot
const backupTimeout = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Environment),
		zap.Int("port", cfg.App.Port),
	)

	a, err := app.Open(cfg, log)
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)
	rt := router.NewRouter(cfg, log, a.Backend, a.Metrics, rateLimiter, router.Handlers{
		Customer: handler.NewCustomerHandler(a.Customers, log),
		Product:  handler.NewProductHandler(a.Products, log),
		Document: handler.NewDocumentHandler(a.Documents, log),
		Settings: handler.NewSettingsHandler(a.Settings, log),
		Report:   handler.NewReportHandler(a.Reports, log),
		Storage:  handler.NewStorageHandler(a.Root, a.Backups, log),
	})

	// Initialize and start scheduler for background jobs
	var scheduler *jobs.Scheduler
	if a.Backups != nil {
		scheduler = jobs.NewScheduler(log)
		if err := jobs.RegisterBackupJob(scheduler, a.Backups, log, cfg.Backup.Cron, backupTimeout); err != nil {
			log.Error("Failed to register backup job", zap.Error(err))
		} else {
			scheduler.Start()
			next, _ := scheduler.NextRun(jobs.BackupJobName)
			log.Info("Scheduler started with backup job",
				zap.String("cron_expr", cfg.Backup.Cron),
				zap.String("mode", cfg.Backup.Mode),
				zap.Time("next_run", next),
			)
		}
	} else {
		log.Info("Scheduled backups disabled")
	}

	// Bind first so a port of 0 resolves before the address is announced
	listener, err := net.Listen("tcp", cfg.App.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.App.Addr(), err)
	}

	srv := &http.Server{
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", listener.Addr().String()))
		serverErrors <- srv.Serve(listener)
	}()

	// The desktop shell waits for this line on stdout
	fmt.Printf("READY http://%s\n", listener.Addr().String())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		if scheduler != nil {
			ctx := scheduler.Stop()
			<-ctx.Done()
			log.Info("Scheduler stopped")
		}

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeoutDuration())
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}

		log.Info("Server stopped gracefully")
	}

	return nil
}
