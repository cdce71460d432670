package ws

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

// StartRedisSubscriber escuta o canal de broadcast do engine e entrega cada
// evento para apply. É o caminho rápido; o Kafka cobre o que se perder aqui,
// e a deduplicação do reconciliador absorve o que chegar pelos dois.
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, apply func(context.Context, events.Envelope), log *zap.Logger) {
	sub := r.Subscribe(ctx, channel)
	go consume(ctx, sub.Channel(), func() { _ = sub.Close() }, apply, log)
}

func consume(ctx context.Context, ch <-chan *redis.Message, closeFn func(), apply func(context.Context, events.Envelope), log *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			closeFn()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if msg == nil {
				continue
			}
			ev, err := events.Decode([]byte(msg.Payload))
			if err != nil {
				log.Warn("ws subscriber decode error", zap.Error(err))
				continue
			}
			apply(ctx, ev)
		}
	}
}
