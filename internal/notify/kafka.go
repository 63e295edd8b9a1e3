package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"depth-whale-monitor/internal/domain"
)

// messageWriter is the subset of *kafka.Writer the sender uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes events as JSON, keyed by symbol so one symbol's
// events stay ordered within a partition.
type KafkaSender struct {
	writer messageWriter
}

// NewKafkaSender creates a sender writing to topic on brokers.
func NewKafkaSender(brokers []string, topic string) *KafkaSender {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSender{writer: w}
}

// Send publishes ev.
func (k *KafkaSender) Send(ctx context.Context, ev domain.WhaleEvent) error {
	value, err := json.Marshal(newEventMessage(ev))
	if err != nil {
		return fmt.Errorf("kafka: marshal event: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: value,
		Time:  ev.Timestamp,
		Headers: []kafka.Header{
			{Key: "category", Value: []byte(ev.Classification.Category)},
			{Key: "source", Value: []byte(ev.Source)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (k *KafkaSender) Name() string {
	return "kafka"
}

// Close flushes and closes the writer.
func (k *KafkaSender) Close() error {
	return k.writer.Close()
}
