package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	gateway "github.com/radieske/race-session-engine/internal/api-gateway"
	"github.com/radieske/race-session-engine/internal/shared/config"
	"github.com/radieske/race-session-engine/internal/shared/logger"
	"github.com/radieske/race-session-engine/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler, err := gateway.NewRouter(gateway.Targets{
		Engine:     cfg.EngineURL,
		Reconciler: cfg.ReconcilerURL,
		Beacon:     cfg.BeaconURL,
	}, cfg.AllowedOrigins)
	if err != nil {
		log.Fatal("gateway routes", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.Serve(gctx, metrics.NewServer(cfg.MetricsPort, nil)) })
	g.Go(func() error {
		log.Info("api-gateway listening", zap.String("addr", srv.Addr),
			zap.String("engine", cfg.EngineURL), zap.String("reconciler", cfg.ReconcilerURL))
		return metrics.Serve(gctx, srv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
