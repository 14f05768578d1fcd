package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/bootstrap"
	"github.com/segyhp/tontine-engine/internal/config"
	"github.com/segyhp/tontine-engine/internal/service"
)

// each reminder run must finish before the next tick
const reminderRunTimeout = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	logger.Info("Starting tontine scheduler...")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	backend, err := bootstrap.Open(startCtx, cfg, logger)
	cancelStart()
	if err != nil {
		logger.Fatal("Failed to open backends", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(context.Background()); err != nil {
			logger.Warn("closing backends", zap.Error(err))
		}
	}()

	reminders := service.NewReminderService(backend.Tontines, backend.Emitter(), backend.Gate(), logger, cfg.Scheduler.ReminderLeadDays)

	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(cfg.GetSchedulerLocation()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	if err := setupCronJobs(c, cfg, reminders, logger); err != nil {
		logger.Fatal("Failed to schedule jobs", zap.Error(err))
	}

	c.Start()
	logger.Info("Scheduler started successfully", zap.Int("jobs", len(c.Entries())))

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down scheduler...")
	<-c.Stop().Done()
	logger.Info("Scheduler stopped")
}

func setupCronJobs(c *cron.Cron, cfg *config.Config, reminders *service.ReminderService, logger *zap.Logger) error {
	_, err := c.AddFunc(cfg.Scheduler.ReminderSpec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reminderRunTimeout)
		defer cancel()

		start := time.Now()
		sent, err := reminders.SendPaymentReminders(ctx, start)
		if err != nil {
			logger.Error("payment reminder job failed", zap.Error(err), zap.Int("sent", sent))
			return
		}
		logger.Info("payment reminder job finished",
			zap.Int("sent", sent),
			zap.Duration("duration", time.Since(start)),
		)
	})
	if err != nil {
		return err
	}

	logger.Info("Cron jobs scheduled", zap.String("payment_reminders", cfg.Scheduler.ReminderSpec))
	return nil
}
