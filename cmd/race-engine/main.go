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

	"github.com/radieske/race-session-engine/internal/race-engine/beacon"
	"github.com/radieske/race-session-engine/internal/race-engine/deadline"
	httpapi "github.com/radieske/race-session-engine/internal/race-engine/http"
	"github.com/radieske/race-session-engine/internal/race-engine/ledger"
	"github.com/radieske/race-session-engine/internal/race-engine/producer"
	"github.com/radieske/race-session-engine/internal/race-engine/pubsub"
	"github.com/radieske/race-session-engine/internal/race-engine/session"
	"github.com/radieske/race-session-engine/internal/race-engine/settlement"
	"github.com/radieske/race-session-engine/internal/race-engine/simulator"
	"github.com/radieske/race-session-engine/internal/shared/cache"
	"github.com/radieske/race-session-engine/internal/shared/config"
	"github.com/radieske/race-session-engine/internal/shared/kafka"
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

	// Redis: fan-out de baixa latência para os reconciliadores
	redisClient, err := cache.ConnectRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	// Kafka: registro durável dos eventos da sessão
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRaceEvents)
	defer writer.Close()

	// Métricas Prometheus alimentadas pelos hooks da sessão
	bets := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_bets_total", Help: "apostas por resultado"}, []string{"result"})
	settled := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_rounds_settled_total", Help: "rounds liquidados"}, []string{"forced"})
	settleLatency := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "race_settle_seconds", Help: "tempo entre fechar e liquidar"})
	randomness := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_randomness_draws_total", Help: "sorteios de semente"}, []string{"ok"})
	pot := prometheus.NewGauge(prometheus.GaugeOpts{Name: "race_current_pot", Help: "pot do round corrente"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_events_published_total", Help: "eventos publicados por tipo"}, []string{"kind"})
	publishErrors := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "race_events_publish_errors_total", Help: "falhas de publicação por transporte"}, []string{"target"})
	prometheus.MustRegister(bets, settled, settleLatency, randomness, pot, published, publishErrors)

	fanout := &session.Fanout{
		Log: log,
		Targets: map[string]session.Publisher{
			"kafka": producer.NewKafkaPublisher(writer, cfg.TopicRaceEvents),
			"redis": pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
		},
		OnError:   func(target string) { publishErrors.WithLabelValues(target).Inc() },
		OnPublish: func(kind string) { published.WithLabelValues(kind).Inc() },
	}

	clock := deadline.New(quartz.NewReal())

	ledgerOpts := []ledger.Option{ledger.WithEmitter(fanout)}
	sessionOpts := []session.Option{
		session.WithEmitter(fanout),
		session.WithLogger(log),
		session.WithHooks(session.Hooks{
			OnBet: func(kind string) { bets.WithLabelValues(kind).Inc() },
			OnSettled: func(forced bool, took time.Duration) {
				settled.WithLabelValues(boolLabel(forced)).Inc()
				settleLatency.Observe(took.Seconds())
			},
			OnRandomness: func(ok bool) { randomness.WithLabelValues(boolLabel(ok)).Inc() },
			OnPot:        pot.Set,
		}),
	}
	if cfg.BeaconURL != "" {
		bc := beacon.New(cfg.BeaconURL)
		ledgerOpts = append(ledgerOpts, ledger.WithCommitter(bc.Commit))
		sessionOpts = append(sessionOpts, session.WithSource(bc))
		log.Info("randomness beacon configured", zap.String("url", cfg.BeaconURL))
	} else {
		log.Warn("BEACON_URL not set, using deterministic fallback seed (demo only)")
	}

	l := ledger.New(ledger.Config{
		BettingWindow: cfg.Race.BettingWindow,
		MinBet:        cfg.Race.MinBet,
	}, clock, log.Named("ledger"), ledgerOpts...)

	eng := settlement.New(settlement.Config{AutoContinue: cfg.Race.AutoContinue}, l, fanout, clock, log.Named("settlement"))

	params := simulator.DefaultParams()
	params.Duration = cfg.Race.RaceDuration
	params.Step = cfg.Race.RaceStep
	params.TrackLength = cfg.Race.TrackLength
	if err := params.Validate(); err != nil {
		log.Fatal("race params", zap.Error(err))
	}

	sess := session.New(session.Config{
		AutoContinue:       cfg.Race.AutoContinue,
		Params:             params,
		SettlePollInterval: cfg.Race.SettlePollInterval,
	}, l, eng, clock, sessionOpts...)

	reserve := prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: "race_ledger_reserve", Help: "valor retido pela casa (poeira e pots sem vencedor)"},
		func() float64 { return sess.Reserve().InexactFloat64() })
	prometheus.MustRegister(reserve)

	if cfg.Race.AutoContinue {
		id, err := sess.OpenRound(ctx)
		if err != nil {
			log.Fatal("open first round", zap.Error(err))
		}
		log.Info("first round opened", zap.Uint64("round_id", id))
	}

	if cfg.OperatorToken == "" {
		log.Warn("OPERATOR_TOKEN not set, operator routes disabled")
	}
	api := &httpapi.API{Session: sess, Log: log, OperatorToken: cfg.OperatorToken}
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	health := metrics.All(
		sess.Healthy,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, metrics.NewServer(cfg.MetricsPort, health)) })
	g.Go(func() error {
		log.Info("race-engine listening", zap.String("addr", srv.Addr))
		return metrics.Serve(gctx, srv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("race-engine stopped", zap.Error(err))
	}
	log.Info("race-engine shutdown")
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
