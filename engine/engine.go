// Package engine centralizes the simulator's business logic: it owns
// the tag registry, the simulation loop, the publisher manager, the
// alarm engine, and the event bus that ties them together.
package engine

import (
	"fmt"
	"sync"
	"time"

	"tagsim/alarm"
	"tagsim/bridge"
	"tagsim/config"
	"tagsim/publish"
	"tagsim/publish/historian"
	"tagsim/publish/kafkapub"
	"tagsim/publish/mqttpub"
	"tagsim/publish/redispub"
	"tagsim/publish/wspub"
	"tagsim/sim"
	"tagsim/store"
	"tagsim/tag"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// Engine orchestrates all subsystems.
type Engine struct {
	cfg        *config.Config
	configPath string
	logFn      LogFunc
	debugFn    LogFunc

	registry *tag.Registry
	sim      *sim.Engine
	pubs     *publish.Manager
	alarms   *alarm.Engine
	db       *store.DB
	wsHub    *wspub.Publisher

	bridgeMu  sync.Mutex
	opcBridge *bridge.Bridge

	Events   *EventBus
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// Config holds the parameters needed to create an Engine.
type Config struct {
	AppConfig  *config.Config
	ConfigPath string
	LogFunc    LogFunc
	Debug      bool
}

// New creates and wires the Engine. Call Start() to begin simulation.
func New(c Config) (*Engine, error) {
	logFn := c.LogFunc
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	debugFn := LogFunc(func(string, ...interface{}) {})
	if c.Debug {
		debugFn = logFn
	}
	e := &Engine{
		cfg:        c.AppConfig,
		configPath: c.ConfigPath,
		logFn:      logFn,
		debugFn:    debugFn,
		Events:     NewEventBus(),
		stopChan:   make(chan struct{}),
	}

	registry, err := tag.NewRegistry(e.cfg.Tags)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	e.registry = registry

	e.sim, err = sim.NewEngine(registry, &simEmitter{bus: e.Events}, e.cfg.TickRate, sim.LogFunc(debugFn))
	if err != nil {
		return nil, fmt.Errorf("build simulator: %w", err)
	}

	e.pubs = publish.NewManager(e.cfg.PublishTimeout, publish.LogFunc(logFn))
	e.wsHub = wspub.New(logFn)

	if e.cfg.Alarms.Enabled {
		if e.cfg.Alarms.DatabasePath != "" {
			e.db, err = store.Open(e.cfg.Alarms.DatabasePath)
			if err != nil {
				return nil, fmt.Errorf("open alarm history db: %w", err)
			}
		}
		var hs alarm.HistoryStore
		if e.db != nil {
			hs = e.db
		}
		notifiers := alarm.BuildNotifiers(e.cfg.Alarms.Notify)
		e.alarms = alarm.NewEngine(e.cfg.Alarms, notifiers, &alarmEmitter{bus: e.Events}, hs, alarm.LogFunc(logFn))
	}

	e.wireEventHandlers()
	return e, nil
}

// Start registers publishers and begins the simulation loop.
func (e *Engine) Start() {
	e.registerPublishers()
	e.sim.Start()
	if e.db != nil && e.cfg.Alarms.RetentionDays > 0 {
		e.wg.Add(1)
		go e.purgeLoop()
	}
	e.logFn("engine started: tags=%d tick=%s", e.registry.Count(), e.cfg.TickRate)
}

// purgeLoop trims alarm history rows older than the retention window,
// once at startup and then hourly.
func (e *Engine) purgeLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		cutoff := time.Now().AddDate(0, 0, -e.cfg.Alarms.RetentionDays)
		removed, err := e.db.PurgeAlarmEventsBefore(cutoff)
		if err != nil {
			e.logFn("engine: purge alarm history: %v", err)
		} else if removed > 0 {
			e.logFn("engine: purged %d alarm events older than %s", removed, cutoff.Format("2006-01-02"))
		}
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
		}
	}
}

// Stop shuts down all subsystems gracefully.
func (e *Engine) Stop() {
	select {
	case <-e.stopChan:
	default:
		close(e.stopChan)
	}

	e.wg.Wait()
	e.sim.Stop()
	e.pubs.StopAll()
	if e.alarms != nil {
		e.alarms.Wait()
	}
	if e.db != nil {
		e.db.Close()
	}
	e.logFn("engine stopped")
}

// registerPublishers wires every configured sink into the manager.
// Registration starts the enabled ones; the rest stay available for
// runtime enable.
func (e *Engine) registerPublishers() {
	pc := e.cfg.Publishers

	e.pubs.Register("mqtt", pc.MQTT.Enabled, func() (publish.Publisher, error) {
		return mqttpub.New(pc.MQTT), nil
	})
	e.pubs.Register("kafka", pc.Kafka.Enabled, func() (publish.Publisher, error) {
		return kafkapub.New(pc.Kafka), nil
	})
	e.pubs.Register("redis", pc.Redis.Enabled, func() (publish.Publisher, error) {
		return redispub.New(pc.Redis), nil
	})
	e.pubs.Register("historian", pc.Historian.Enabled, func() (publish.Publisher, error) {
		return historian.New(pc.Historian), nil
	})
	// The websocket hub is shared with the HTTP router, so the builder
	// hands back the one instance instead of constructing fresh.
	e.pubs.Register("websocket", pc.WebSocket.Enabled, func() (publish.Publisher, error) {
		return e.wsHub, nil
	})
	e.pubs.Register("opcua", pc.OPCUA.Enabled, func() (publish.Publisher, error) {
		b := bridge.New(pc.OPCUA, nil, bridge.LogFunc(e.logFn))
		e.bridgeMu.Lock()
		e.opcBridge = b
		e.bridgeMu.Unlock()
		return b, nil
	})
}

// wireEventHandlers routes simulation updates to the publishers and the
// alarm engine.
func (e *Engine) wireEventHandlers() {
	e.Events.SubscribeTypes(func(evt Event) {
		tu := evt.Payload.(TagUpdateEvent)
		e.pubs.DispatchBatch(tu.Updates)
		if e.alarms != nil {
			for _, u := range tu.Updates {
				e.alarms.HandleUpdate(u)
			}
		}
	}, EventTagUpdate)
}

// WriteTag queues an external write into the simulation loop. The value
// is coerced to the tag's type before being applied.
func (e *Engine) WriteTag(name string, value interface{}) error {
	return e.sim.Write(name, value)
}

// EnablePublisher starts a registered publisher at runtime.
func (e *Engine) EnablePublisher(name string) error {
	if err := e.pubs.Enable(name); err != nil {
		return err
	}
	e.Events.Emit(Event{Type: EventPublisherState, Payload: PublisherStateEvent{Name: name, Enabled: true}})
	return nil
}

// DisablePublisher stops a registered publisher at runtime.
func (e *Engine) DisablePublisher(name string) {
	e.pubs.Disable(name)
	e.Events.Emit(Event{Type: EventPublisherState, Payload: PublisherStateEvent{Name: name, Enabled: false}})
}

// Registry returns the tag registry.
func (e *Engine) Registry() *tag.Registry { return e.registry }

// Publishers returns the publisher manager.
func (e *Engine) Publishers() *publish.Manager { return e.pubs }

// Alarms returns the alarm engine, or nil when alarms are disabled.
func (e *Engine) Alarms() *alarm.Engine { return e.alarms }

// DB returns the alarm history database, or nil when not configured.
func (e *Engine) DB() *store.DB { return e.db }

// WSHub returns the websocket hub for HTTP route mounting.
func (e *Engine) WSHub() *wspub.Publisher { return e.wsHub }

// Bridge returns the OPC UA bridge, or nil while it has never been
// enabled.
func (e *Engine) Bridge() *bridge.Bridge {
	e.bridgeMu.Lock()
	defer e.bridgeMu.Unlock()
	return e.opcBridge
}

// AppConfig returns the app config.
func (e *Engine) AppConfig() *config.Config { return e.cfg }

// ConfigPath returns the config file path.
func (e *Engine) ConfigPath() string { return e.configPath }
