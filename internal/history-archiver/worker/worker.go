package worker

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Recorder é o destino dos eventos (o repositório Postgres)
type Recorder interface {
	Record(ctx context.Context, ev events.Envelope) error
}

// Worker consome race_events e arquiva no Postgres.
// Mensagens que falham depois das tentativas vão para a DLQ com o erro no header.
type Worker struct {
	Log      *zap.Logger
	Reader   messageReader
	DLQ      messageWriter // opcional
	Recorder Recorder

	Retries int
	Backoff time.Duration

	OnConsumed   func()       // métricas
	OnPersisted  func()       // métricas
	OnDeadLetter func()       // métricas
	OnError      func(string) // métricas por fase
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		m, err := w.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Log.Warn("kafka fetch failed", zap.Error(err))
			w.fail("fetch")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if w.OnConsumed != nil {
			w.OnConsumed()
		}

		// nem arquivou nem foi para a DLQ: insiste na mesma mensagem. Buscar a
		// próxima e confirmar depois pularia este offset.
		for attempt := 1; ; attempt++ {
			err := w.process(ctx, m)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Log.Error("archive failed, retrying message",
				zap.Int64("offset", m.Offset),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			if !sleep(ctx, w.retryEvery()) {
				return ctx.Err()
			}
		}

		if err := w.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			w.fail("commit")
		}
	}
}

func (w *Worker) retryEvery() time.Duration {
	if w.Backoff > 0 {
		return w.Backoff
	}
	return 500 * time.Millisecond
}

// process devolve erro apenas quando a mensagem não pôde ser arquivada
// nem enviada para a DLQ
func (w *Worker) process(ctx context.Context, m kafka.Message) error {
	ev, err := events.Decode(m.Value)
	if err != nil {
		w.Log.Warn("invalid race event", zap.Int64("offset", m.Offset), zap.Error(err))
		w.fail("decode")
		return w.deadLetter(ctx, m, err)
	}

	attempts := w.Retries
	if attempts <= 0 {
		attempts = 3
	}
	for i := 1; ; i++ {
		err = w.Recorder.Record(ctx, ev)
		if err == nil {
			if w.OnPersisted != nil {
				w.OnPersisted()
			}
			return nil
		}
		w.fail("db")
		if i >= attempts || ctx.Err() != nil {
			break
		}
		// backoff linear, igual ao worker de confirmação
		if !sleep(ctx, w.Backoff*time.Duration(i)) {
			return ctx.Err()
		}
	}

	w.Log.Error("archive retries exhausted",
		zap.String("kind", string(ev.Kind)),
		zap.Uint64("round_id", ev.RoundID),
		zap.Int("attempts", attempts),
		zap.Error(err),
	)
	return w.deadLetter(ctx, m, err)
}

func (w *Worker) deadLetter(ctx context.Context, m kafka.Message, cause error) error {
	if w.DLQ == nil {
		return nil
	}
	dl := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Time:  time.Now(),
		Headers: append(append([]kafka.Header(nil), m.Headers...),
			kafka.Header{Key: "error", Value: []byte(cause.Error())},
		),
	}
	if err := w.DLQ.WriteMessages(ctx, dl); err != nil {
		w.fail("dlq")
		return err
	}
	if w.OnDeadLetter != nil {
		w.OnDeadLetter()
	}
	return nil
}

func (w *Worker) fail(stage string) {
	if w.OnError != nil {
		w.OnError(stage)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
