package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

// Publisher entrega um evento para um transporte (Kafka, Redis Pub/Sub)
type Publisher interface {
	Publish(ctx context.Context, ev events.Envelope) error
}

// Fanout publica cada evento em todos os transportes configurados.
// Falha em um transporte não impede os outros; o erro é logado e contado.
type Fanout struct {
	Log       *zap.Logger
	Timeout   time.Duration
	Targets   map[string]Publisher
	OnError   func(target string) // métricas
	OnPublish func(kind string)   // métricas
}

func (f *Fanout) Emit(ctx context.Context, evs ...events.Envelope) {
	// o evento já foi confirmado pelo ledger: cancelamento do chamador
	// (ex.: cliente HTTP desconectou) não pode impedir a publicação
	base := context.WithoutCancel(ctx)
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	for _, ev := range evs {
		for name, p := range f.Targets {
			pctx, cancel := context.WithTimeout(base, timeout)
			err := p.Publish(pctx, ev)
			cancel()
			if err != nil {
				if f.Log != nil {
					f.Log.Error("event publish failed",
						zap.String("target", name),
						zap.String("kind", string(ev.Kind)),
						zap.Uint64("round_id", ev.RoundID),
						zap.Error(err),
					)
				}
				if f.OnError != nil {
					f.OnError(name)
				}
			}
		}
		if f.OnPublish != nil {
			f.OnPublish(string(ev.Kind))
		}
	}
}
