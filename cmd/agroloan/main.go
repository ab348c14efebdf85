// Package main запускает HTTP-сервер кредитного движка агроплатформы.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/agroloan-system/internal/config"
	"github.com/mmeshcher/agroloan-system/internal/handler"
	"github.com/mmeshcher/agroloan-system/internal/identity"
	"github.com/mmeshcher/agroloan-system/internal/middleware"
	"github.com/mmeshcher/agroloan-system/internal/notify"
	"github.com/mmeshcher/agroloan-system/internal/repository"
	"github.com/mmeshcher/agroloan-system/internal/scheduler"
	"github.com/mmeshcher/agroloan-system/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	notifier := notify.NewClient(cfg.NotifyAddress)
	identityClient := identity.NewClient(cfg.IdentityAddress)

	svc := service.NewService(repo, notifier, identityClient, logger)
	defer svc.Close()

	secret := cfg.AuthSecret
	if secret == "" {
		secret = "agroloan-secret"
	}
	authMiddleware := middleware.NewAuthMiddleware(secret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	sched := scheduler.New(svc, cfg.JobInterval, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновых регламентных задач
	g.Go(func() error {
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			return fmt.Errorf("scheduler error: %w", err)
		}
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting agroloan server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
