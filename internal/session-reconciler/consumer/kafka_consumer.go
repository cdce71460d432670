package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Applier é quem consome o evento (o reconciliador)
type Applier interface {
	Apply(ctx context.Context, ev events.Envelope) (bool, error)
}

// Processor lê race_events do Kafka e aplica no reconciliador.
// O offset só é confirmado depois do Apply, então a entrega é at-least-once
// e a deduplicação fica a cargo do reconciliador.
type Processor struct {
	Log     *zap.Logger
	Reader  messageReader
	Applier Applier

	Retries int           // tentativas de Apply antes de desistir da mensagem
	Backoff time.Duration // espera entre tentativas

	OnConsumed func()       // métricas
	OnApplied  func()       // métricas
	OnError    func(string) // métricas por fase
}

func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.fail("fetch")
			if !sleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		p.handle(ctx, m)

		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.fail("commit")
		}
	}
}

func (p *Processor) handle(ctx context.Context, m kafka.Message) {
	ev, err := events.Decode(m.Value)
	if err != nil {
		// mensagem inválida nunca vai passar: registra e segue
		p.Log.Warn("invalid race event", zap.Int64("offset", m.Offset), zap.Error(err))
		p.fail("decode")
		return
	}

	attempts := p.Retries
	if attempts <= 0 {
		attempts = 3
	}
	for i := 1; ; i++ {
		applied, err := p.Applier.Apply(ctx, ev)
		if err == nil {
			if applied && p.OnApplied != nil {
				p.OnApplied()
			}
			return
		}
		if errors.Is(err, events.ErrInvalidEnvelope) || i >= attempts || ctx.Err() != nil {
			p.Log.Error("dropping race event",
				zap.String("kind", string(ev.Kind)),
				zap.Uint64("round_id", ev.RoundID),
				zap.Int("attempts", i),
				zap.Error(err),
			)
			p.fail("apply")
			return
		}
		if !sleep(ctx, p.Backoff*time.Duration(i)) {
			return
		}
	}
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
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
