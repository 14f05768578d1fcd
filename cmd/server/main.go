package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/tontine-engine/internal/bootstrap"
	"github.com/segyhp/tontine-engine/internal/config"
	"github.com/segyhp/tontine-engine/internal/handler"
	"github.com/segyhp/tontine-engine/internal/proofstore"
	"github.com/segyhp/tontine-engine/internal/service"
)

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

	proofs, err := proofstore.NewOsFileStore(cfg.Storage.ProofDir, cfg.Storage.MaxProofBytes)
	if err != nil {
		logger.Fatal("Failed to prepare proof storage", zap.Error(err), zap.String("dir", cfg.Storage.ProofDir))
	}

	// Initialize services
	tontineService := service.NewTontineService(backend.Tontines, proofs, backend.Emitter(), logger, cfg.Business)
	notificationService := service.NewNotificationService(backend.Notifications)

	router := handler.NewRouter(
		handler.NewTontineHandler(tontineService),
		handler.NewNotificationHandler(notificationService),
		handler.NewHealthHandler(backend.Checks, cfg.GetHealthTimeout()),
		logger,
	)

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr), zap.String("env", cfg.Server.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("Server exited")
}
