package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"tagsim/metric"
	"tagsim/tag"
)

// EventEmitter receives the batch of updates produced by each tick.
type EventEmitter interface {
	EmitTagUpdates(updates []tag.Update)
}

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

type simTag struct {
	def      tag.Definition
	strategy Strategy
}

// Engine advances tag values on a fixed tick. It is the sole writer of
// the registry; consumers get copies through the emitter or registry
// snapshots.
type Engine struct {
	registry *tag.Registry
	emitter  EventEmitter
	tickRate time.Duration
	logFn    LogFunc

	tags []simTag

	mu      sync.Mutex
	started time.Time
	running bool

	writeCh  chan tag.Update
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewEngine builds strategies for every simulated tag. A bad strategy
// descriptor is a configuration error and fails startup.
func NewEngine(registry *tag.Registry, emitter EventEmitter, tickRate time.Duration, logFn LogFunc) (*Engine, error) {
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	if tickRate <= 0 {
		tickRate = time.Second
	}
	e := &Engine{
		registry: registry,
		emitter:  emitter,
		tickRate: tickRate,
		logFn:    logFn,
		writeCh:  make(chan tag.Update, 16),
		stopChan: make(chan struct{}),
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for _, def := range registry.Definitions() {
		if !def.Simulate {
			continue
		}
		st, err := NewStrategy(def.Strategy, rng)
		if err != nil {
			return nil, fmt.Errorf("tag %q: %w", def.Name, err)
		}
		e.tags = append(e.tags, simTag{def: def, strategy: st})
	}
	return e, nil
}

// Start begins the tick loop.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.started = time.Now()
	e.mu.Unlock()

	e.wg.Add(1)
	go e.tickLoop()
	e.logFn("sim: engine started, %d simulated tags, tick %s", len(e.tags), e.tickRate)
}

// Stop halts the tick loop and waits for it to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}
	e.wg.Wait()
	e.logFn("sim: engine stopped")
}

// Write applies an external value to a tag (REST write-back). It funnels
// through the engine so the registry keeps a single writer; the update is
// coerced, committed, and emitted like a tick-produced one.
func (e *Engine) Write(name string, value interface{}) error {
	def, ok := e.registry.Definition(name)
	if !ok {
		return fmt.Errorf("tag %q not found", name)
	}
	v, err := tag.Coerce(def.Type, value)
	if err != nil {
		return err
	}
	u := tag.Update{Tag: name, Type: def.Type, Value: v, Timestamp: time.Now()}
	select {
	case e.writeCh <- u:
		return nil
	default:
		return fmt.Errorf("tag %q: write queue full", name)
	}
}

func (e *Engine) tickLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.tickRate)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case u := <-e.writeCh:
			e.registry.Commit([]tag.Update{u})
			e.emitter.EmitTagUpdates([]tag.Update{u})
		case <-ticker.C:
			e.tick(time.Since(e.started))
		}
	}
}

// tick computes all values, commits the batch atomically, then hands it
// to the emitter. Computation is CPU-only; all I/O happens downstream in
// the publisher fan-out.
func (e *Engine) tick(elapsed time.Duration) {
	now := time.Now()
	updates := make([]tag.Update, 0, len(e.tags))
	for i := range e.tags {
		st := &e.tags[i]
		prev, ok := e.registry.Get(st.def.Name)
		if !ok {
			continue
		}
		next := st.strategy.Next(prev.Value, elapsed)
		v, err := tag.Coerce(st.def.Type, next)
		if err != nil {
			e.logFn("sim: tag %q: %v", st.def.Name, err)
			continue
		}
		updates = append(updates, tag.Update{
			Tag:       st.def.Name,
			Type:      st.def.Type,
			Value:     v,
			Timestamp: now,
		})
	}
	e.registry.Commit(updates)
	metric.TicksTotal.Inc()
	if len(updates) > 0 {
		e.emitter.EmitTagUpdates(updates)
	}
}

// Tick runs a single simulation step immediately. Exposed for tests and
// for driving the engine from an external clock.
func (e *Engine) Tick(elapsed time.Duration) {
	e.tick(elapsed)
}
