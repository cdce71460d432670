package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httpapi "github.com/radieske/race-session-engine/internal/randomness-beacon/http"
	"github.com/radieske/race-session-engine/internal/randomness-beacon/service"
	"github.com/radieske/race-session-engine/internal/randomness-beacon/store"
	"github.com/radieske/race-session-engine/internal/shared/cache"
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

	redisClient, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// a retenção conta a partir do commit; precisa cobrir a janela de apostas
	retention := cfg.BeaconSecretRetention
	if retention < 2*cfg.Race.BettingWindow {
		retention = 2 * cfg.Race.BettingWindow
	}
	svc := service.New(store.NewRedisStore(redisClient, retention), quartz.NewReal(), log)

	api := &httpapi.API{Service: svc, Log: log}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	health := func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.Serve(gctx, metrics.NewServer(cfg.MetricsPort, health)) })
	g.Go(func() error {
		log.Info("randomness-beacon listening", zap.String("addr", srv.Addr))
		return metrics.Serve(gctx, srv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("randomness-beacon stopped", zap.Error(err))
	}
	log.Info("randomness-beacon shutdown")
}
