// Package bridge mirrors tag updates to remote OPC UA servers. Each
// configured server has its own connection and reconnect loop so one
// unreachable endpoint never affects the others. Updates that arrive
// while a server is disconnected are dropped; only fresh values are
// written after a reconnect.
package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tagsim/config"
	"tagsim/metric"
	"tagsim/tag"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Bridge fans tag updates out to every configured OPC UA server. It
// implements the publisher contract so the manager handles its
// lifecycle and backpressure like any other sink.
type Bridge struct {
	servers []*remoteServer
}

// New builds a bridge from config. The dial function may be nil, in
// which case the real OPC UA client is used.
func New(cfg config.OPCUAConfig, dial DialFunc, logFn LogFunc) *Bridge {
	if dial == nil {
		dial = dialOPCUA
	}
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	interval := cfg.ReconnectInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	b := &Bridge{}
	for _, sc := range cfg.Servers {
		b.servers = append(b.servers, newRemoteServer(sc, dial, interval, logFn))
	}
	return b
}

// Name identifies the bridge to the publisher manager.
func (b *Bridge) Name() string { return "opcua" }

// Start launches the per-server reconnect loops. Connections are
// established in the background; Start never blocks on a remote.
func (b *Bridge) Start() error {
	if len(b.servers) == 0 {
		return fmt.Errorf("no opcua servers configured")
	}
	for _, s := range b.servers {
		s.start()
	}
	return nil
}

// Stop closes every server connection and waits for the loops to exit.
func (b *Bridge) Stop() {
	for _, s := range b.servers {
		s.stop()
	}
}

// Publish writes one update to every connected server. Servers are
// written concurrently so a hung remote burns its own share of the
// deadline without stalling its siblings. Disconnected servers drop
// the update; the first failure is reported after all writes finish.
func (b *Bridge) Publish(ctx context.Context, u tag.Update) error {
	errs := make([]error, len(b.servers))
	var wg sync.WaitGroup
	for i, s := range b.servers {
		wg.Add(1)
		go func(i int, s *remoteServer) {
			defer wg.Done()
			if err := s.write(ctx, u); err != nil {
				metric.BridgeWritesTotal.WithLabelValues(s.cfg.Name, "error").Inc()
				errs[i] = fmt.Errorf("server %s: %w", s.cfg.Name, err)
				return
			}
			metric.BridgeWritesTotal.WithLabelValues(s.cfg.Name, "success").Inc()
		}(i, s)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Healthy reports true when at least one server is connected.
func (b *Bridge) Healthy() bool {
	for _, s := range b.servers {
		if s.isConnected() {
			return true
		}
	}
	return false
}

// ServerStates returns per-server connection status, keyed by name.
func (b *Bridge) ServerStates() map[string]bool {
	out := make(map[string]bool, len(b.servers))
	for _, s := range b.servers {
		out[s.cfg.Name] = s.isConnected()
	}
	return out
}
