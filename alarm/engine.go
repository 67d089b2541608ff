package alarm

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"tagsim/config"
	"tagsim/metric"
	"tagsim/tag"
)

// LogFunc is the logging callback signature.
type LogFunc func(format string, args ...interface{})

// EventEmitter publishes alarm transitions onto the engine event bus.
type EventEmitter interface {
	EmitAlarmRaised(inst Instance)
	EmitAlarmCleared(inst Instance)
}

// HistoryStore persists alarm transitions. Optional; nil disables
// persistence.
type HistoryStore interface {
	InsertAlarmEvent(inst Instance) error
}

// Engine evaluates updates against the rule set. All rule state is owned
// by the engine and mutated only on its own evaluation pass.
type Engine struct {
	mu           sync.Mutex
	rules        []config.AlarmRule
	active       map[string]*Instance // rule name -> instance
	lastNotified map[string]time.Time // rule name -> last notification
	history      []Instance           // bounded ring, oldest first
	historySize  int

	notifiers map[string]Notifier
	emitter   EventEmitter
	store     HistoryStore
	logFn     LogFunc
	now       func() time.Time

	notifyWg sync.WaitGroup
}

// NewEngine builds the alarm engine. Rules are assumed validated by the
// config loader.
func NewEngine(cfg config.AlarmsConfig, notifiers map[string]Notifier, emitter EventEmitter, store HistoryStore, logFn LogFunc) *Engine {
	if logFn == nil {
		logFn = func(string, ...interface{}) {}
	}
	size := cfg.HistorySize
	if size <= 0 {
		size = 1000
	}
	return &Engine{
		rules:        cfg.Rules,
		active:       make(map[string]*Instance),
		lastNotified: make(map[string]time.Time),
		historySize:  size,
		notifiers:    notifiers,
		emitter:      emitter,
		store:        store,
		logFn:        logFn,
		now:          time.Now,
	}
}

// HandleUpdate evaluates one tag update against every matching rule.
func (e *Engine) HandleUpdate(u tag.Update) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.rules {
		rule := &e.rules[i]
		if rule.Tag != u.Tag {
			continue
		}
		breached := evaluate(u.Value, rule.Condition, rule.Threshold)
		inst := e.active[rule.Name]

		switch {
		case breached && inst == nil:
			e.trigger(rule, u)
		case breached && inst != nil:
			inst.LastValue = u.Value
			inst.LastUpdate = u.Timestamp
			// Ongoing breach: re-notify once per debounce window.
			if e.debounceElapsed(rule, u.Timestamp) {
				e.notify(rule, *inst, false, true)
				e.lastNotified[rule.Name] = u.Timestamp
			}
		case !breached && inst != nil && rule.AutoClear:
			e.clear(rule, inst, u)
		}
	}
}

// trigger creates an ACTIVE instance. The transition is immediate; the
// notification is debounced independently.
func (e *Engine) trigger(rule *config.AlarmRule, u tag.Update) {
	now := u.Timestamp
	if now.IsZero() {
		now = e.now()
	}
	inst := &Instance{
		ID:             uuid.New().String(),
		RuleName:       rule.Name,
		Tag:            rule.Tag,
		Priority:       priorityOrDefault(rule.Priority),
		Message:        rule.Message,
		Condition:      conditionString(*rule),
		Status:         StatusActive,
		TriggeredValue: u.Value,
		LastValue:      u.Value,
		TriggeredAt:    now,
		LastUpdate:     now,
	}
	e.active[rule.Name] = inst
	e.appendHistory(*inst)
	metric.ActiveAlarms.Set(float64(len(e.active)))

	e.logFn("alarm: TRIGGERED %s: %s=%v %s - %s", rule.Name, rule.Tag, u.Value, inst.Condition, rule.Message)
	if e.emitter != nil {
		e.emitter.EmitAlarmRaised(*inst)
	}
	e.persist(*inst)

	if e.debounceElapsed(rule, now) {
		e.notify(rule, *inst, false, false)
		e.lastNotified[rule.Name] = now
	}
}

// clear transitions an instance to CLEARED and moves it to history.
func (e *Engine) clear(rule *config.AlarmRule, inst *Instance, u tag.Update) {
	now := u.Timestamp
	if now.IsZero() {
		now = e.now()
	}
	inst.Status = StatusCleared
	inst.ClearedAt = &now
	inst.ClearedValue = u.Value
	inst.LastValue = u.Value
	inst.LastUpdate = now

	cleared := *inst
	delete(e.active, rule.Name)
	e.appendHistory(cleared)
	metric.ActiveAlarms.Set(float64(len(e.active)))

	e.logFn("alarm: CLEARED %s: %s=%v (was %v)", rule.Name, rule.Tag, u.Value, cleared.TriggeredValue)
	if e.emitter != nil {
		e.emitter.EmitAlarmCleared(cleared)
	}
	e.persist(cleared)

	// Cleared notifications are not debounced; the condition ceasing is
	// always worth announcing on the same channels.
	e.notify(rule, cleared, true, false)
}

func (e *Engine) debounceElapsed(rule *config.AlarmRule, now time.Time) bool {
	last, ok := e.lastNotified[rule.Name]
	if !ok {
		return true
	}
	return now.Sub(last).Seconds() >= rule.DebounceSeconds
}

// notify dispatches to every channel of the rule, fire-and-forget. A
// channel failure is logged and counted, never blocks the evaluation
// pass or sibling channels.
func (e *Engine) notify(rule *config.AlarmRule, inst Instance, cleared, repeated bool) {
	n := Notification{Alarm: inst, Cleared: cleared, Repeated: repeated}
	for _, ch := range rule.Channels {
		notifier, ok := e.notifiers[ch]
		if !ok {
			continue
		}
		e.notifyWg.Add(1)
		go func(ch string, notifier Notifier) {
			defer e.notifyWg.Done()
			if err := notifier.Send(n); err != nil {
				metric.NotificationsTotal.WithLabelValues(ch, "error").Inc()
				e.logFn("alarm: notify %s for %s: %v", ch, inst.RuleName, err)
				return
			}
			metric.NotificationsTotal.WithLabelValues(ch, "success").Inc()
		}(ch, notifier)
	}
}

func (e *Engine) appendHistory(inst Instance) {
	e.history = append(e.history, inst)
	if len(e.history) > e.historySize {
		e.history = e.history[len(e.history)-e.historySize:]
	}
}

func (e *Engine) persist(inst Instance) {
	if e.store == nil {
		return
	}
	if err := e.store.InsertAlarmEvent(inst); err != nil {
		e.logFn("alarm: persist %s: %v", inst.RuleName, err)
	}
}

// Acknowledge marks an active instance as acknowledged. It does not
// clear the alarm.
func (e *Engine) Acknowledge(ruleName, user string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.active[ruleName]
	if !ok {
		return false
	}
	now := e.now()
	inst.Acknowledged = true
	inst.AcknowledgedBy = user
	inst.AcknowledgedAt = &now
	e.logFn("alarm: acknowledged %s by %s", ruleName, user)
	return true
}

// Active returns copies of all currently active instances.
func (e *Engine) Active() []Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Instance, 0, len(e.active))
	for _, inst := range e.active {
		out = append(out, *inst)
	}
	return out
}

// History returns up to limit most recent history entries, oldest first.
func (e *Engine) History(limit int) []Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.history
	if limit > 0 && len(h) > limit {
		h = h[len(h)-limit:]
	}
	out := make([]Instance, len(h))
	copy(out, h)
	return out
}

// Wait blocks until all in-flight notifications finish. Used at shutdown
// and in tests.
func (e *Engine) Wait() {
	e.notifyWg.Wait()
}

// SetClock overrides the engine clock for tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	e.now = now
	e.mu.Unlock()
}

func priorityOrDefault(p string) string {
	if p == "" {
		return PriorityWarning
	}
	return p
}
