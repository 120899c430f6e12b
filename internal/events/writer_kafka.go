package events

import (
	"context"
	"fmt"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/segmentio/kafka-go"
)

const kafkaPublishTimeout = 30 * time.Second

// KafkaWriter publishes events as structured cloudevents JSON.
type KafkaWriter struct {
	writer *kafka.Writer
}

func NewKafkaWriter(brokers ...string) *KafkaWriter {
	return &KafkaWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
		},
	}
}

func (k *KafkaWriter) Write(ctx context.Context, topic string, e cloudevents.Event) error {
	value, err := e.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding event %s: %w", e.ID(), err)
	}

	ctx, cancel := context.WithTimeout(ctx, kafkaPublishTimeout)
	defer cancel()

	return k.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(e.Type()),
		Value: value,
		Time:  e.Time(),
	})
}

func (k *KafkaWriter) Close(_ context.Context) error {
	return k.writer.Close()
}
