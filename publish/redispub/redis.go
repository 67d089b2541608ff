// Package redispub keeps the latest value of every tag in Redis and
// announces updates on a pub/sub channel. It is a cache sink: downstream
// consumers poll the keys or subscribe to the channel.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tagsim/config"
	"tagsim/tag"
)

// Publisher is the Redis protocol sink.
type Publisher struct {
	cfg    config.RedisConfig
	client *redis.Client
}

// New creates a Redis publisher from config.
func New(cfg config.RedisConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

// Name returns the protocol name.
func (p *Publisher) Name() string { return "redis" }

// Start connects and verifies the server is reachable.
func (p *Publisher) Start() error {
	p.client = redis.NewClient(&redis.Options{
		Addr:     p.cfg.Addr,
		Password: p.cfg.Password,
		DB:       p.cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Stop closes the connection.
func (p *Publisher) Stop() {
	if p.client != nil {
		p.client.Close()
		p.client = nil
	}
}

// Publish sets the tag's key to the update JSON and publishes the same
// payload on the update channel, pipelined as one round trip.
func (p *Publisher) Publish(ctx context.Context, u tag.Update) error {
	if p.client == nil {
		return fmt.Errorf("redis not connected")
	}
	data, err := json.Marshal(map[string]interface{}{
		"tag":       u.Tag,
		"value":     u.Value,
		"timestamp": u.Timestamp.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode update: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Set(ctx, p.cfg.KeyPrefix+u.Tag, data, 0)
	if p.cfg.Channel != "" {
		pipe.Publish(ctx, p.cfg.Channel, data)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// Healthy reports whether the client is connected.
func (p *Publisher) Healthy() bool { return p.client != nil }
