package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"tagsim/tag"
)

// Config is the top-level application configuration.
type Config struct {
	TickRate       time.Duration `yaml:"tick_rate"`
	PublishTimeout time.Duration `yaml:"publish_timeout"`

	Tags       []tag.Definition `yaml:"tags"`
	Web        WebConfig        `yaml:"web"`
	Publishers PublishersConfig `yaml:"publishers"`
	Alarms     AlarmsConfig     `yaml:"alarms"`
}

// WebConfig defines the web server settings.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// PublishersConfig holds one section per protocol sink.
type PublishersConfig struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Redis     RedisConfig     `yaml:"redis"`
	Historian HistorianConfig `yaml:"historian"`
	OPCUA     OPCUAConfig     `yaml:"opcua"`
}

// MQTTConfig defines the MQTT publisher.
type MQTTConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Broker        string `yaml:"broker"`
	Port          int    `yaml:"port"`
	ClientID      string `yaml:"client_id"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	TopicPrefix   string `yaml:"topic_prefix"`
	PayloadFormat string `yaml:"payload_format"` // "json" or "string"
	QoS           byte   `yaml:"qos"`
	Retain        bool   `yaml:"retain"`
}

// KafkaConfig defines the Kafka publisher.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// WebSocketConfig defines the WebSocket broadcast publisher.
type WebSocketConfig struct {
	Enabled bool `yaml:"enabled"`
}

// RedisConfig defines the Redis latest-value publisher.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
	Channel   string `yaml:"channel"`
}

// HistorianConfig defines the Postgres history publisher.
type HistorianConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
	Table   string `yaml:"table"`
}

// OPCUAConfig defines the OPC UA client bridge.
type OPCUAConfig struct {
	Enabled           bool          `yaml:"enabled"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	Servers           []OPCUAServer `yaml:"servers"`
}

// OPCUAServer is one remote OPC UA server the bridge writes to.
type OPCUAServer struct {
	Name            string            `yaml:"name"`
	URL             string            `yaml:"url"`
	Username        string            `yaml:"username"`
	Password        string            `yaml:"password"`
	Namespace       uint16            `yaml:"namespace"`
	BaseNode        string            `yaml:"base_node"`
	AutoCreateNodes bool              `yaml:"auto_create_nodes"`
	NodeMapping     map[string]string `yaml:"node_mapping"`
}

// AlarmsConfig defines the alarm engine.
type AlarmsConfig struct {
	Enabled       bool                `yaml:"enabled"`
	HistorySize   int                 `yaml:"history_size"`
	DatabasePath  string              `yaml:"database_path"`  // optional sqlite history
	RetentionDays int                 `yaml:"retention_days"` // 0 keeps forever
	Rules         []AlarmRule         `yaml:"rules"`
	Notify        NotificationsConfig `yaml:"notifications"`
}

// AlarmRule is a threshold rule against one tag.
type AlarmRule struct {
	Name            string   `yaml:"name"`
	Tag             string   `yaml:"tag"`
	Condition       string   `yaml:"condition"` // > >= < <= == !=
	Threshold       float64  `yaml:"threshold"`
	Priority        string   `yaml:"priority"` // INFO WARNING CRITICAL
	DebounceSeconds float64  `yaml:"debounce_seconds"`
	AutoClear       bool     `yaml:"auto_clear"`
	Channels        []string `yaml:"channels"` // log email webhook sms
	Message         string   `yaml:"message"`
}

// NotificationsConfig holds per-channel transport settings.
type NotificationsConfig struct {
	Email   EmailConfig   `yaml:"email"`
	Webhook WebhookConfig `yaml:"webhook"`
	SMS     SMSConfig     `yaml:"sms"`
}

// EmailConfig defines the SMTP notification channel.
type EmailConfig struct {
	Enabled    bool     `yaml:"enabled"`
	SMTPServer string   `yaml:"smtp_server"`
	SMTPPort   int      `yaml:"smtp_port"`
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	From       string   `yaml:"from"`
	To         []string `yaml:"to"`
}

// WebhookConfig defines the HTTP webhook notification channel.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// SMSConfig defines an HTTP SMS gateway notification channel.
type SMSConfig struct {
	Enabled    bool     `yaml:"enabled"`
	GatewayURL string   `yaml:"gateway_url"`
	APIKey     string   `yaml:"api_key"`
	FromNumber string   `yaml:"from_number"`
	ToNumbers  []string `yaml:"to_numbers"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		TickRate:       time.Second,
		PublishTimeout: 5 * time.Second,
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Publishers: PublishersConfig{
			MQTT: MQTTConfig{
				Broker:        "localhost",
				Port:          1883,
				ClientID:      "tagsim",
				TopicPrefix:   "tagsim",
				PayloadFormat: "json",
			},
			Kafka: KafkaConfig{
				Brokers: []string{"localhost:9092"},
				Topic:   "industrial-data",
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "tagsim:tag:",
				Channel:   "tagsim:updates",
			},
			Historian: HistorianConfig{
				Table: "tag_history",
			},
			OPCUA: OPCUAConfig{
				ReconnectInterval: 5 * time.Second,
			},
		},
		Alarms: AlarmsConfig{
			HistorySize: 1000,
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are
// used. The result is validated; any violation fails startup.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, cfg.Validate()
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

var validConditions = map[string]bool{
	">": true, ">=": true, "<": true, "<=": true, "==": true, "!=": true,
}

var validPriorities = map[string]bool{
	"INFO": true, "WARNING": true, "CRITICAL": true,
}

var validChannels = map[string]bool{
	"log": true, "email": true, "webhook": true, "sms": true,
}

// Validate checks the whole config. Errors here are fatal at startup:
// the process never partially starts on a bad definition.
func (c *Config) Validate() error {
	if c.TickRate <= 0 {
		return fmt.Errorf("tick_rate must be > 0")
	}
	if c.PublishTimeout <= 0 {
		return fmt.Errorf("publish_timeout must be > 0")
	}

	seen := make(map[string]bool, len(c.Tags))
	for i := range c.Tags {
		d := &c.Tags[i]
		if d.Name == "" {
			return fmt.Errorf("tag %d: name is required", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate tag name %q", d.Name)
		}
		seen[d.Name] = true
		if _, err := tag.ParseType(string(d.Type)); err != nil {
			return fmt.Errorf("tag %q: %w", d.Name, err)
		}
		if d.Simulate {
			switch d.Strategy.Kind {
			case tag.StrategyRandom:
				if d.Strategy.Min > d.Strategy.Max {
					return fmt.Errorf("tag %q: random min > max", d.Name)
				}
			case tag.StrategySine:
				if d.Strategy.Period <= 0 {
					return fmt.Errorf("tag %q: sine period must be > 0", d.Name)
				}
			case tag.StrategyIncrement, tag.StrategyStatic, "":
			default:
				return fmt.Errorf("tag %q: unknown strategy %q", d.Name, d.Strategy.Kind)
			}
		}
	}

	if c.Alarms.RetentionDays < 0 {
		return fmt.Errorf("alarms: retention_days must be >= 0")
	}
	ruleNames := make(map[string]bool, len(c.Alarms.Rules))
	for i := range c.Alarms.Rules {
		r := &c.Alarms.Rules[i]
		if r.Name == "" {
			return fmt.Errorf("alarm rule %d: name is required", i)
		}
		if ruleNames[r.Name] {
			return fmt.Errorf("duplicate alarm rule %q", r.Name)
		}
		ruleNames[r.Name] = true
		if !seen[r.Tag] {
			return fmt.Errorf("alarm rule %q: unknown tag %q", r.Name, r.Tag)
		}
		if !validConditions[r.Condition] {
			return fmt.Errorf("alarm rule %q: unknown condition %q", r.Name, r.Condition)
		}
		if r.Priority != "" && !validPriorities[r.Priority] {
			return fmt.Errorf("alarm rule %q: unknown priority %q", r.Name, r.Priority)
		}
		if r.DebounceSeconds < 0 {
			return fmt.Errorf("alarm rule %q: debounce_seconds must be >= 0", r.Name)
		}
		for _, ch := range r.Channels {
			if !validChannels[ch] {
				return fmt.Errorf("alarm rule %q: unknown channel %q", r.Name, ch)
			}
		}
	}

	if c.Publishers.OPCUA.Enabled {
		for i, srv := range c.Publishers.OPCUA.Servers {
			if srv.URL == "" {
				return fmt.Errorf("opcua server %d: url is required", i)
			}
		}
	}
	return nil
}
