package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/anveshgarg/courtscout/internal/api"
	"github.com/anveshgarg/courtscout/internal/artifact"
	"github.com/anveshgarg/courtscout/internal/automation"
	"github.com/anveshgarg/courtscout/internal/captcha"
	"github.com/anveshgarg/courtscout/internal/config"
	"github.com/anveshgarg/courtscout/internal/history"
	"github.com/anveshgarg/courtscout/internal/logging"
	"github.com/anveshgarg/courtscout/internal/monitoring"
	"github.com/anveshgarg/courtscout/internal/ratelimit"
	"github.com/anveshgarg/courtscout/internal/render"
	"github.com/anveshgarg/courtscout/internal/session"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting courtscout",
		zap.String("addr", cfg.Server.Addr),
		zap.String("launch_mode", cfg.Automation.Launch))

	metrics := monitoring.New()

	// Docker launch mode pulls the Chrome image here; give it room.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancelStartup()

	factory, err := automation.NewRodFactory(startupCtx, cfg.Automation, logger)
	if err != nil {
		logger.Fatal("building automation factory failed", zap.Error(err))
	}

	solver := captcha.NewSolver(
		captcha.NewNeuralEngine(cfg.Captcha.NeuralEndpoint),
		captcha.NewTesseractEngine(cfg.Captcha.TessdataPrefix),
		cfg.Captcha.ExpectedLength,
		cfg.Captcha.Workers,
		logger,
		metrics,
	)

	ledger := history.NewLedger(cfg.Storage.HistoryFile, logger)

	artifacts, err := artifact.NewStore(cfg.Storage.ArtifactDir)
	if err != nil {
		logger.Fatal("initializing artifact store failed", zap.Error(err))
	}

	renderLauncher, err := automation.NewLauncher(startupCtx, cfg.Automation, logger)
	if err != nil {
		logger.Fatal("building render launcher failed", zap.Error(err))
	}
	renderer := render.NewPDFRenderer(renderLauncher, logger)
	defer renderer.Close()

	registry := session.NewRegistry(
		factory, solver, ledger, metrics,
		cfg.Session, cfg.Automation.WaitTimeout, logger,
	)

	limiter := ratelimit.NewLimiter(cfg.RateLimit.RequestsPerHour, cfg.RateLimit.Burst)

	handler := api.NewHandler(registry, ledger, artifacts, render.NewComposer(), renderer, metrics, logger)
	router := handler.SetupRoutes(limiter, cfg.RateLimit)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // PDF rendering can be slow
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http shutdown forced", zap.Error(err))
	}
	registry.Shutdown(ctx)

	logger.Info("stopped cleanly")
}
