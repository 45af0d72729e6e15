package notify

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/rl1809/stockroom/internal/core/domain"
)

// KafkaPublisher publishes stock changes to a Kafka topic, keyed by product
// so per-product ordering follows the commit order.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) PublishStockChange(ctx context.Context, change domain.StockChange) error {
	payload, err := encodeStockChange(change)
	if err != nil {
		return fmt.Errorf("encode stock change: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(change.Product.ID),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("write to %s: %w", p.writer.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
