package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/AnchalDevBytes/challan-maker/internal/handler"
	"github.com/AnchalDevBytes/challan-maker/internal/repository"
	"github.com/AnchalDevBytes/challan-maker/internal/router"
	"github.com/AnchalDevBytes/challan-maker/internal/service"
	"github.com/AnchalDevBytes/challan-maker/pkg/cache"
	"github.com/AnchalDevBytes/challan-maker/pkg/config"
	"github.com/AnchalDevBytes/challan-maker/pkg/database"
	"github.com/AnchalDevBytes/challan-maker/pkg/export"
	"github.com/AnchalDevBytes/challan-maker/pkg/logger"
	"github.com/AnchalDevBytes/challan-maker/pkg/mailer"
	"github.com/AnchalDevBytes/challan-maker/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	mail, err := mailer.New(cfg.Mail, logr)
	if err != nil {
		logr.Sugar().Fatalw("failed to init mailer", "error", err)
	}

	store, err := storage.NewS3(ctx, cfg.Storage)
	if err != nil {
		logr.Sugar().Fatalw("failed to init object storage", "error", err)
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	tokenRepo := repository.NewTokenRepository(db)
	userRepo := repository.NewUserRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient)

	tokenService := service.NewTokenService(tokenRepo, logr, metrics, cfg.Auth)
	authService := service.NewAuthService(userRepo, tokenService, mail, validate, logr, cfg.Auth.OTPExpiry)
	invoiceService := service.NewInvoiceService(invoiceRepo, cacheRepo, export.NewInvoiceRenderer(), store, validate, logr, metrics, cfg.Invoices)

	engine := router.New(router.Dependencies{
		Config:   cfg,
		Logger:   logr,
		DB:       db,
		Redis:    redisClient,
		Metrics:  metrics,
		Tokens:   tokenService,
		Auth:     handler.NewAuthHandler(authService, tokenService, cfg.Auth),
		Invoices: handler.NewInvoiceHandler(invoiceService),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
