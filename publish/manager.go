package publish

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tagsim/metric"
	"tagsim/tag"
)

// entry is one managed publisher: its builder plus the live generation
// when enabled.
type entry struct {
	name  string
	build Builder
	run   *runner // nil while disabled
}

// runner is one enabled generation of a publisher: the instance, its
// one-slot latest-wins mailbox, and the channels bounding its worker's
// lifetime. All fields are set before the worker starts and never
// reassigned, so the worker reads them without locking. Enable creates
// a fresh runner; Disable retires the old one and waits on its done
// channel, never on a later generation.
type runner struct {
	pub      Publisher
	mailbox  chan tag.Update
	stopChan chan struct{}
	done     chan struct{}
}

// Manager owns the set of configured publishers and fans every update out
// to each enabled one on its own goroutine. Dispatch never blocks: if a
// sink is still busy when the next update arrives, the pending update is
// replaced (latest-value-wins, bounded backpressure).
type Manager struct {
	mu      sync.RWMutex
	entries map[string]*entry
	timeout time.Duration
	logFn   LogFunc
}

// NewManager creates an empty manager. Per-write timeout bounds every
// Publish call.
func NewManager(timeout time.Duration, logFn LogFunc) *Manager {
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Manager{
		entries: make(map[string]*entry),
		timeout: timeout,
		logFn:   logFn,
	}
}

// Register adds a publisher under its protocol name. If enabled, it is
// built and started immediately; a start failure is logged and the
// publisher left disabled (a broken sink must not prevent the rest of the
// process from starting).
func (m *Manager) Register(name string, enabled bool, build Builder) {
	m.mu.Lock()
	e := &entry{name: name, build: build}
	m.entries[name] = e
	m.mu.Unlock()

	if enabled {
		if err := m.Enable(name); err != nil {
			m.logFn("publish: %s start failed: %v", name, err)
		}
	}
}

// Enable builds, starts, and begins dispatching to a publisher. Safe to
// call concurrently with Dispatch.
func (m *Manager) Enable(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[name]
	if !ok {
		return fmt.Errorf("publisher %q not registered", name)
	}
	if e.run != nil {
		return nil
	}

	pub, err := e.build()
	if err != nil {
		return fmt.Errorf("build %s: %w", name, err)
	}
	if err := pub.Start(); err != nil {
		pub.Stop()
		return fmt.Errorf("start %s: %w", name, err)
	}

	r := &runner{
		pub:      pub,
		mailbox:  make(chan tag.Update, 1),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	e.run = r
	go m.worker(e.name, r)

	m.logFn("publish: %s enabled", name)
	return nil
}

// Disable stops dispatching to a publisher and tears it down. The worker
// is drained first so no event is delivered mid-teardown.
func (m *Manager) Disable(name string) {
	m.mu.Lock()
	e, ok := m.entries[name]
	if !ok || e.run == nil {
		m.mu.Unlock()
		return
	}
	r := e.run
	e.run = nil
	m.mu.Unlock()

	close(r.stopChan)
	<-r.done
	r.pub.Stop()
	m.logFn("publish: %s disabled", name)
}

// Dispatch offers an update to every enabled publisher. Non-blocking: a
// busy sink has its pending update replaced by the newer one.
func (m *Manager) Dispatch(u tag.Update) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		r := e.run
		if r == nil {
			continue
		}
		select {
		case r.mailbox <- u:
		default:
			// Mailbox full: displace the stale update, then offer again.
			select {
			case <-r.mailbox:
				metric.PublishDroppedTotal.WithLabelValues(e.name).Inc()
			default:
			}
			select {
			case r.mailbox <- u:
			default:
				metric.PublishDroppedTotal.WithLabelValues(e.name).Inc()
			}
		}
	}
}

// DispatchBatch offers a tick's worth of updates.
func (m *Manager) DispatchBatch(updates []tag.Update) {
	for _, u := range updates {
		m.Dispatch(u)
	}
}

// worker delivers mailbox updates to one publisher with a bounded
// timeout. A sink that ignores cancellation only wedges its own call;
// the worker moves on after the deadline.
func (m *Manager) worker(name string, r *runner) {
	defer close(r.done)
	for {
		select {
		case <-r.stopChan:
			return
		case u := <-r.mailbox:
			m.deliver(name, r.pub, u)
		}
	}
}

func (m *Manager) deliver(name string, pub Publisher, u tag.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- pub.Publish(ctx, u)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		metric.PublishErrorsTotal.WithLabelValues(name).Inc()
		m.logFn("publish: %s: %s: %v", name, u.Tag, err)
		return
	}
	metric.PublishesTotal.WithLabelValues(name).Inc()
}

// Statuses returns the state of every registered publisher, sorted by name.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.entries))
	for _, e := range m.entries {
		s := Status{Name: e.name, Enabled: e.run != nil}
		if e.run != nil {
			s.Healthy = e.run.pub.Healthy()
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// StopAll disables every publisher. Used at shutdown; in-flight writes
// finish or time out before connections are released.
func (m *Manager) StopAll() {
	m.mu.RLock()
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	m.mu.RUnlock()
	for _, name := range names {
		m.Disable(name)
	}
}
