package kafka

import (
	"context"
	"strings"
	"time"

	k "github.com/segmentio/kafka-go"
)

// Writer publishes durable-mutation envelopes (message-created events) for
// downstream consumers. Async with no required acks: the ledger is the
// source of truth, the bus is a feed.
type Writer struct {
	w *k.Writer
}

func NewWriter(brokers, topic string) *Writer {
	w := &k.Writer{
		Addr:         k.TCP(strings.Split(brokers, ",")...),
		Topic:        topic,
		Balancer:     &k.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: k.RequireNone,
		Async:        true,
	}
	return &Writer{w: w}
}

func (w *Writer) Close() error { return w.w.Close() }

func (w *Writer) Publish(ctx context.Context, key string, value []byte) error {
	return w.w.WriteMessages(ctx, k.Message{
		Key:   []byte(key),
		Value: value,
		Time:  time.Now(),
	})
}
