// Package mqttpub publishes tag updates to an MQTT broker, one topic per
// tag under a configurable prefix.
package mqttpub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"tagsim/config"
	"tagsim/tag"
)

// Publisher is the MQTT protocol sink.
type Publisher struct {
	cfg  config.MQTTConfig
	conn mqtt.Client
}

// New creates an MQTT publisher from config.
func New(cfg config.MQTTConfig) *Publisher {
	return &Publisher{cfg: cfg}
}

// Name returns the protocol name.
func (p *Publisher) Name() string { return "mqtt" }

// Start connects to the broker. The paho client keeps retrying in the
// background after the first attempt, so a down broker at startup is not
// fatal to the publisher.
func (p *Publisher) Start() error {
	broker := fmt.Sprintf("tcp://%s:%d", p.cfg.Broker, p.cfg.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if p.cfg.Username != "" && p.cfg.Password != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.conn = client
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p.conn != nil {
		p.conn.Disconnect(1000)
		p.conn = nil
	}
}

// Publish sends a tag update to <topic_prefix>/<tag>. Payload is JSON by
// default, or the bare value when payload_format is "string".
func (p *Publisher) Publish(ctx context.Context, u tag.Update) error {
	if p.conn == nil || !p.conn.IsConnected() {
		return fmt.Errorf("mqtt not connected")
	}

	topic := fmt.Sprintf("%s/%s", p.cfg.TopicPrefix, u.Tag)
	var payload []byte
	if p.cfg.PayloadFormat == "string" {
		payload = []byte(fmt.Sprintf("%v", u.Value))
	} else {
		data, err := json.Marshal(map[string]interface{}{
			"tag":       u.Tag,
			"value":     u.Value,
			"timestamp": u.Timestamp.Unix(),
		})
		if err != nil {
			return fmt.Errorf("encode payload: %w", err)
		}
		payload = data
	}

	token := p.conn.Publish(topic, p.cfg.QoS, p.cfg.Retain, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Healthy reports whether the broker connection is up.
func (p *Publisher) Healthy() bool {
	return p.conn != nil && p.conn.IsConnected()
}
