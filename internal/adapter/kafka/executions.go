package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// ExecutionReportProducer publishes participant responses, keyed by
// participant, with a synchronous sarama producer.
type ExecutionReportProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewExecutionReportProducer(brokers []string, topic string) (*ExecutionReportProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: execution producer: %w", err)
	}
	return NewExecutionReportProducerWith(producer, topic), nil
}

func NewExecutionReportProducerWith(producer sarama.SyncProducer, topic string) *ExecutionReportProducer {
	return &ExecutionReportProducer{producer: producer, topic: topic}
}

func (p *ExecutionReportProducer) Publish(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

func (p *ExecutionReportProducer) Close() error {
	return p.producer.Close()
}
