package bus

import (
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
)

// Consumer pulls bounded batches from one Kafka topic.
//
// Auto-commit is disabled: offsets move only when Commit is called, which
// the pipeline does after its write transaction commits. A failed write
// leaves offsets untouched so the broker redelivers the batch.
type Consumer struct {
	c *kafka.Consumer
}

func NewConsumer(brokers, groupID, topic string) (*Consumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "earliest",
		"enable.auto.commit": false,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka consumer: %w", err)
	}

	if err := c.SubscribeTopics([]string{topic}, nil); err != nil {
		c.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}

	return &Consumer{c: c}, nil
}

// PollBatch reads up to max message payloads, giving the broker at most
// timeout per read. Running out of messages before max is not an error;
// the partial batch is returned.
func (c *Consumer) PollBatch(max int, timeout time.Duration) ([][]byte, error) {
	var payloads [][]byte

	for len(payloads) < max {
		msg, err := c.c.ReadMessage(timeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				break
			}
			return payloads, fmt.Errorf("reading message: %w", err)
		}
		payloads = append(payloads, msg.Value)
	}

	return payloads, nil
}

// Commit stores the offsets of everything returned by PollBatch so far.
func (c *Consumer) Commit() error {
	_, err := c.c.Commit()
	if err != nil {
		var kerr kafka.Error
		// Nothing polled since the last commit.
		if errors.As(err, &kerr) && kerr.Code() == kafka.ErrNoOffset {
			return nil
		}
		return fmt.Errorf("committing offsets: %w", err)
	}
	return nil
}

func (c *Consumer) Close() error {
	return c.c.Close()
}
