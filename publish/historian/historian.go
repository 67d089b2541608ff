// Package historian appends tag updates to a Postgres history table so
// time-series consumers can query past values.
package historian

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tagsim/config"
	"tagsim/tag"
)

// Publisher is the Postgres history sink.
type Publisher struct {
	cfg  config.HistorianConfig
	pool *pgxpool.Pool
}

// New creates a historian publisher from config.
func New(cfg config.HistorianConfig) *Publisher {
	if cfg.Table == "" {
		cfg.Table = "tag_history"
	}
	return &Publisher{cfg: cfg}
}

// Name returns the protocol name.
func (p *Publisher) Name() string { return "historian" }

// Start opens the pool and ensures the history table exists.
func (p *Publisher) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, p.cfg.DSN)
	if err != nil {
		return fmt.Errorf("historian connect: %w", err)
	}
	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		tag TEXT NOT NULL,
		value TEXT NOT NULL,
		value_type TEXT NOT NULL,
		ts TIMESTAMPTZ NOT NULL
	)`, p.cfg.Table)
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return fmt.Errorf("historian schema: %w", err)
	}
	p.pool = pool
	return nil
}

// Stop closes the pool.
func (p *Publisher) Stop() {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}

// Publish inserts one history row. Values are stored as text alongside
// their type tag so mixed-type tag sets share one table.
func (p *Publisher) Publish(ctx context.Context, u tag.Update) error {
	if p.pool == nil {
		return fmt.Errorf("historian not connected")
	}
	query := fmt.Sprintf("INSERT INTO %s (tag, value, value_type, ts) VALUES ($1, $2, $3, $4)", p.cfg.Table)
	_, err := p.pool.Exec(ctx, query, u.Tag, fmt.Sprintf("%v", u.Value), string(u.Type), u.Timestamp)
	return err
}

// Healthy reports whether the pool is reachable.
func (p *Publisher) Healthy() bool {
	if p.pool == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return p.pool.Ping(ctx) == nil
}
