// Package notify forwards record store changes to logs and to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"docverify/internal/docverify"
)

// DefaultTopic receives change events when none is configured.
const DefaultTopic = "docverify.record-changes"

// LogObserver writes every change to a Logger.
type LogObserver struct {
	logger docverify.Logger
}

var _ docverify.Observer = (*LogObserver)(nil)

func NewLogObserver(logger docverify.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) RecordChanged(c docverify.Change) {
	o.logger.Debug("record changed", "action", string(c.Action), "hash", c.Hash)
}

type producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
	Flush(ctx context.Context) error
	Close()
}

// KafkaObserver publishes each change as a JSON record keyed by hash. Produce
// is asynchronous; failures are logged from the delivery callback.
type KafkaObserver struct {
	client producer
	topic  string
	logger docverify.Logger
}

var _ docverify.Observer = (*KafkaObserver)(nil)

// NewKafkaObserver connects a producer to brokers.
func NewKafkaObserver(brokers []string, topic string, logger docverify.Logger) (*KafkaObserver, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka observer requires at least one broker")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return newKafkaObserver(client, topic, logger), nil
}

func newKafkaObserver(client producer, topic string, logger docverify.Logger) *KafkaObserver {
	return &KafkaObserver{client: client, topic: topic, logger: logger}
}

func (o *KafkaObserver) RecordChanged(c docverify.Change) {
	value, err := json.Marshal(c)
	if err != nil {
		o.logger.Warn("encoding change event failed", "action", string(c.Action), "error", err)
		return
	}
	rec := &kgo.Record{Topic: o.topic, Key: []byte(c.Hash), Value: value}
	o.client.Produce(context.Background(), rec, func(r *kgo.Record, err error) {
		if err != nil {
			o.logger.Warn("publishing change event failed", "topic", r.Topic, "hash", string(r.Key), "error", err)
		}
	})
}

// Close waits for buffered records to be delivered, then closes the client.
func (o *KafkaObserver) Close(ctx context.Context) error {
	err := o.client.Flush(ctx)
	o.client.Close()
	if err != nil {
		return fmt.Errorf("flushing change events: %w", err)
	}
	return nil
}
