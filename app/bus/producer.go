package bus

import (
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// Producer publishes wire entities to Kafka topics.
type Producer struct {
	p *kafka.Producer
}

func NewProducer(brokers string) (*Producer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": brokers,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return &Producer{p: p}, nil
}

func (p *Producer) Publish(topic string, payload []byte) error {
	err := p.p.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          payload,
	}, nil)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Flush waits for in-flight deliveries and returns the number of messages
// still unsent when the timeout expires.
func (p *Producer) Flush(timeout time.Duration) int {
	return p.p.Flush(int(timeout.Milliseconds()))
}

func (p *Producer) Close() {
	p.p.Close()
}
