package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radieske/race-session-engine/internal/history-archiver/repo"
	"github.com/radieske/race-session-engine/internal/history-archiver/worker"
	"github.com/radieske/race-session-engine/internal/shared/config"
	"github.com/radieske/race-session-engine/internal/shared/db"
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

	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	archive := repo.NewPostgres(pg)
	if err := archive.Migrate(ctx); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicRaceEvents, cfg.ArchiverGroupID)
	defer reader.Close()

	// DLQ opcional: sem tópico configurado, mensagens ruins são só logadas
	w := &worker.Worker{
		Log:      log,
		Reader:   reader,
		Recorder: archive,
		Retries:  3,
		Backoff:  300 * time.Millisecond,
	}
	if cfg.TopicRaceEventsDLQ != "" {
		dlq := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicRaceEventsDLQ)
		defer dlq.Close()
		w.DLQ = dlq
	}

	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "archiver_messages_consumed_total", Help: "mensagens consumidas"})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{Name: "archiver_events_persisted_total", Help: "eventos gravados no postgres"})
	deadLettered := prometheus.NewCounter(prometheus.CounterOpts{Name: "archiver_dead_lettered_total", Help: "mensagens enviadas para a DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "archiver_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, persisted, deadLettered, errorsBy)

	w.OnConsumed = consumed.Inc
	w.OnPersisted = persisted.Inc
	w.OnDeadLetter = deadLettered.Inc
	w.OnError = func(stage string) { errorsBy.WithLabelValues(stage).Inc() }

	log.Info("history-archiver started",
		zap.String("consume", cfg.TopicRaceEvents),
		zap.String("dlq", cfg.TopicRaceEventsDLQ),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, metrics.NewServer(cfg.MetricsPort, pg.PingContext)) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("history-archiver stopped", zap.Error(err))
	}
	log.Info("history-archiver shutdown")
}
