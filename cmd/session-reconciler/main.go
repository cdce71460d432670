package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/race-session-engine/internal/race-engine/simulator"
	"github.com/radieske/race-session-engine/internal/session-reconciler/consumer"
	"github.com/radieske/race-session-engine/internal/session-reconciler/dedup"
	httpapi "github.com/radieske/race-session-engine/internal/session-reconciler/http"
	"github.com/radieske/race-session-engine/internal/session-reconciler/reconciler"
	"github.com/radieske/race-session-engine/internal/session-reconciler/ws"
	"github.com/radieske/race-session-engine/internal/shared/cache"
	"github.com/radieske/race-session-engine/internal/shared/config"
	"github.com/radieske/race-session-engine/internal/shared/kafka"
	"github.com/radieske/race-session-engine/internal/shared/logger"
	"github.com/radieske/race-session-engine/internal/shared/metrics"
	"github.com/radieske/race-session-engine/pkg/contracts/events"
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

	// cada instância precisa de todos os eventos: grupo e dedup são por instância
	groupID := cfg.ReconcilerGroupID + "-" + cfg.InstanceID
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRaceEvents, groupID)
	defer reader.Close()

	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconciler_messages_consumed_total", Help: "mensagens consumidas do kafka"})
	applied := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconciler_events_applied_total", Help: "eventos aplicados"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconciler_duplicates_total", Help: "eventos repetidos descartados"})
	divergences := prometheus.NewCounter(prometheus.CounterOpts{Name: "reconciler_divergences_total", Help: "vencedor local diferente do oficial"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "reconciler_errors_total", Help: "erros por estágio"}, []string{"stage"})

	// a animação local precisa dos mesmos parâmetros do engine
	params := simulator.DefaultParams()
	params.Duration = cfg.Race.RaceDuration
	params.Step = cfg.Race.RaceStep
	params.TrackLength = cfg.Race.TrackLength
	if err := params.Validate(); err != nil {
		log.Fatal("race params", zap.Error(err))
	}

	seen := dedup.NewRedis(redisClient, "reconciler:"+cfg.InstanceID+":seen:", cfg.ReconcilerDedupTTL)
	rec := reconciler.New(quartz.NewReal(), params, seen, log.Named("reconciler"))

	hub := ws.NewHub(ws.OriginChecker(cfg.AllowedOrigins), func() interface{} { return rec.View() }, log)
	rec.OnChange = func(v reconciler.View) { hub.Broadcast(v) }
	rec.OnDuplicate = duplicates.Inc
	rec.OnDivergence = divergences.Inc

	wsClients := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "reconciler_ws_clients_open", Help: "conexões websocket abertas"},
		func() float64 { return float64(hub.Clients()) })
	prometheus.MustRegister(consumed, applied, duplicates, divergences, errorsBy, wsClients)

	// caminho rápido: Redis Pub/Sub. Erros de Apply aqui só são logados,
	// o Kafka reentrega o mesmo evento.
	ws.StartRedisSubscriber(ctx, redisClient, cfg.RedisPubSubChannel, func(ctx context.Context, ev events.Envelope) {
		if _, err := rec.Apply(ctx, ev); err != nil {
			log.Warn("pubsub apply failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
			errorsBy.WithLabelValues("pubsub").Inc()
		}
	}, log)

	proc := &consumer.Processor{
		Log:        log,
		Reader:     reader,
		Applier:    rec,
		Retries:    3,
		Backoff:    200 * time.Millisecond,
		OnConsumed: consumed.Inc,
		OnApplied:  applied.Inc,
		OnError:    func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	api := &httpapi.API{Reconciler: rec, Hub: hub}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	health := func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proc.Run(gctx) })
	g.Go(func() error { return rec.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, metrics.NewServer(cfg.MetricsPort, health)) })
	g.Go(func() error {
		log.Info("session-reconciler listening", zap.String("addr", srv.Addr))
		return metrics.Serve(gctx, srv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("session-reconciler stopped", zap.Error(err))
	}
	log.Info("session-reconciler shutdown")
}
