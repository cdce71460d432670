package kafka

import (
	"strings"

	"github.com/segmentio/kafka-go"
)

// NewWriter usa balanceamento por hash da chave: eventos do mesmo round
// caem na mesma partição e preservam a ordem
func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewReader cria um consumer group; o offset é confirmado pelo consumidor
// com CommitMessages depois do processamento
func NewReader(brokers string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(brokers, ","),
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}
