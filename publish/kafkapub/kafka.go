// Package kafkapub publishes tag updates to a Kafka topic, keyed by tag
// name so all updates for one tag land on the same partition.
package kafkapub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"tagsim/config"
	"tagsim/tag"
)

// Publisher is the Kafka protocol sink.
type Publisher struct {
	cfg    config.KafkaConfig
	writer *kafka.Writer
}

// New creates a Kafka publisher from config.
func New(cfg config.KafkaConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

// Name returns the protocol name.
func (p *Publisher) Name() string { return "kafka" }

// Start initializes the writer. kafka-go dials lazily on first write.
func (p *Publisher) Start() error {
	if len(p.cfg.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(p.cfg.Brokers...),
		Topic:        p.cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	return nil
}

// Stop flushes and closes the writer.
func (p *Publisher) Stop() {
	if p.writer != nil {
		p.writer.Close()
		p.writer = nil
	}
}

// Publish writes one update message.
func (p *Publisher) Publish(ctx context.Context, u tag.Update) error {
	if p.writer == nil {
		return fmt.Errorf("kafka writer not initialized")
	}
	value, err := json.Marshal(map[string]interface{}{
		"tag":       u.Tag,
		"value":     u.Value,
		"timestamp": u.Timestamp.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(u.Tag),
		Value: value,
	})
}

// Healthy reports whether the writer exists. kafka-go surfaces broker
// trouble per write, so there is no extra liveness check beyond that.
func (p *Publisher) Healthy() bool { return p.writer != nil }
