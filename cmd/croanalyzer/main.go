// Package main wires together the analyzer service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/brunogleite/cro-analyzer-backend/internal/api"
	"github.com/brunogleite/cro-analyzer-backend/internal/auth"
	"github.com/brunogleite/cro-analyzer-backend/internal/config"
	"github.com/brunogleite/cro-analyzer-backend/internal/llm"
	"github.com/brunogleite/cro-analyzer-backend/internal/logging"
	"github.com/brunogleite/cro-analyzer-backend/internal/notify"
	"github.com/brunogleite/cro-analyzer-backend/internal/report"
	"github.com/brunogleite/cro-analyzer-backend/internal/repository"
	"github.com/brunogleite/cro-analyzer-backend/internal/scraper"
	"github.com/brunogleite/cro-analyzer-backend/internal/service"
	"github.com/brunogleite/cro-analyzer-backend/internal/storage"
	"github.com/brunogleite/cro-analyzer-backend/internal/store"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := store.Open(ctx, cfg.DB)
	if err != nil {
		logger.Fatal("open database", zap.String("engine", cfg.DB.Engine), zap.Error(err))
	}
	defer func() {
		if closeErr := eng.Close(); closeErr != nil {
			logger.Error("close database", zap.Error(closeErr))
		}
	}()
	if err := store.Migrate(ctx, eng, logger.Named("migrate")); err != nil {
		logger.Fatal("run migrations", zap.Error(err))
	}

	users := repository.NewUsers(eng)
	analyses := repository.NewAnalyses(eng)
	signer := auth.NewSigner(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry())

	var pages service.PageScraper
	if cfg.Scraper.Mode == "http" {
		pages = scraper.NewStatic(scraper.StaticConfig{
			UserAgent: cfg.Scraper.UserAgent,
			Timeout:   time.Duration(cfg.Scraper.NavTimeoutSec) * time.Second,
		})
	} else {
		browser := scraper.NewBrowser(scraper.BrowserConfig{
			UserAgent:         cfg.Scraper.UserAgent,
			SettleTime:        time.Duration(cfg.Scraper.SettleMs) * time.Millisecond,
			NavigationTimeout: time.Duration(cfg.Scraper.NavTimeoutSec) * time.Second,
		})
		defer browser.Close()
		pages = browser
	}

	analyzer, err := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		MaxChars: cfg.LLM.MaxChars,
		Timeout:  time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})
	if err != nil {
		logger.Fatal("init analyzer", zap.Error(err))
	}

	artifacts, err := newStorageProvider(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init storage", zap.Error(err))
	}
	defer func() {
		if closeErr := artifacts.Close(); closeErr != nil {
			logger.Error("close storage", zap.Error(closeErr))
		}
	}()

	publisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("init publisher", zap.Error(err))
	}
	defer func() {
		if closeErr := publisher.Close(); closeErr != nil {
			logger.Error("close publisher", zap.Error(closeErr))
		}
	}()

	authSvc := service.NewAuthService(users, signer, logger.Named("auth"))
	analysisSvc := service.NewAnalysisService(
		analyses, pages, analyzer, report.NewPDF(), artifacts, publisher,
		logger.Named("analysis"),
	)
	apiServer := api.NewServer(authSvc, analysisSvc, eng, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func newStorageProvider(ctx context.Context, cfg config.Config, logger *zap.Logger) (storage.Provider, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		return storage.NewGCS(ctx, cfg.Storage.GCSBucket, logger.Named("gcs"))
	case "noop":
		return &storage.NoOpProvider{}, nil
	default:
		return storage.NewLocal(cfg.Storage.BaseDir)
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Publisher, error) {
	if cfg.Notify.Provider == "pubsub" {
		return notify.NewPubSub(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicID, logger.Named("pubsub"))
	}
	return &notify.NoOpPublisher{}, nil
}
