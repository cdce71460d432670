package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

// DefaultChannel é onde os reconciliadores escutam (caminho de baixa latência;
// o Kafka continua sendo o registro durável)
const DefaultChannel = "race_events_broadcast"

type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

type RedisBroadcaster struct {
	r       redisPublisher
	channel string
}

func NewRedisBroadcaster(r redisPublisher, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, ev events.Envelope) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Kind, err)
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}
