package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// MarketDataWriter publishes market updates keyed by symbol, so each symbol's
// updates land on one partition in order.
type MarketDataWriter struct {
	writer *kafka.Writer
}

func NewMarketDataWriter(brokers []string, topic string) *MarketDataWriter {
	return &MarketDataWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (w *MarketDataWriter) Publish(ctx context.Context, key, value []byte) error {
	return w.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
	})
}

func (w *MarketDataWriter) Close() error {
	return w.writer.Close()
}
