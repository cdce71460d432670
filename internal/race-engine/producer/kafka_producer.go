package producer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/radieske/race-session-engine/pkg/contracts/events"
)

// messageWriter é o pedaço de *kafka.Writer que usamos
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher grava os eventos da sessão no tópico race_events.
// A chave é o round id, então a ordem por round é preservada na partição.
type KafkaPublisher struct {
	Writer messageWriter
	Topic  string
}

func NewKafkaPublisher(w messageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{Writer: w, Topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev events.Envelope) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Kind, err)
	}
	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.PartitionKey()),
		Value: b,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(ev.Kind)},
			{Key: "event_id", Value: []byte(ev.ID)},
		},
	})
}
