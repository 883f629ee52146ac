// Package main запускает HTTP-сервер сервиса бронирования судов.
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

	"github.com/vpanarin/vesselbook/internal/config"
	"github.com/vpanarin/vesselbook/internal/gateway"
	"github.com/vpanarin/vesselbook/internal/handler"
	"github.com/vpanarin/vesselbook/internal/middleware"
	"github.com/vpanarin/vesselbook/internal/repository"
	"github.com/vpanarin/vesselbook/internal/service"
	"github.com/vpanarin/vesselbook/internal/worker"
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

	var gatewayClient *gateway.Client
	if cfg.GatewayAddress != "" {
		gatewayClient = gateway.NewClient(cfg.GatewayAddress)
	}

	svc := service.NewService(repo, service.NewZapEventSink(logger))

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск фоновой обработки: завершение бронирований, просрочка, сборы
	// марины, опрос платёжного шлюза
	sweeper := worker.NewSweeper(svc, gatewayClient, logger, cfg.SweepInterval)
	g.Go(func() error {
		sweeper.Run(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting vesselbook server", "addr", cfg.RunAddress)
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
