package tag

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds tag definitions and current values. The simulation engine
// is the only writer; everything else reads copies. A whole tick's batch is
// committed atomically so readers never observe a partial tick.
type Registry struct {
	mu     sync.RWMutex
	defs   map[string]Definition
	order  []string
	states map[string]State
}

// NewRegistry builds a registry from definitions. Initial values are
// coerced to each tag's declared type; a coercion failure or duplicate
// name is a configuration error.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		defs:   make(map[string]Definition, len(defs)),
		states: make(map[string]State, len(defs)),
	}
	now := time.Now()
	for _, d := range defs {
		if _, dup := r.defs[d.Name]; dup {
			return nil, fmt.Errorf("duplicate tag name %q", d.Name)
		}
		initial := d.Initial
		if initial == nil {
			initial = zeroValue(d.Type)
		}
		v, err := Coerce(d.Type, initial)
		if err != nil {
			return nil, fmt.Errorf("tag %q initial value: %w", d.Name, err)
		}
		r.defs[d.Name] = d
		r.order = append(r.order, d.Name)
		r.states[d.Name] = State{Name: d.Name, Type: d.Type, Value: v, LastUpdated: now}
	}
	return r, nil
}

func zeroValue(t Type) interface{} {
	switch t {
	case TypeInt:
		return int64(0)
	case TypeFloat:
		return float64(0)
	case TypeBool:
		return false
	default:
		return ""
	}
}

// Definitions returns the tag definitions in declaration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.defs[name])
	}
	return defs
}

// Definition returns a single tag definition.
func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.defs[name]
	return d, ok
}

// Get returns a copy of a tag's current state.
func (r *Registry) Get(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[name]
	return s, ok
}

// Snapshot returns a copy of all tag states, sorted by name.
func (r *Registry) Snapshot() []State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]State, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns the number of registered tags.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.states)
}

// Commit applies a batch of updates under a single lock so the whole tick
// becomes visible at once. Values must already be coerced.
func (r *Registry) Commit(updates []Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range updates {
		s, ok := r.states[u.Tag]
		if !ok {
			continue
		}
		s.Value = u.Value
		s.LastUpdated = u.Timestamp
		r.states[u.Tag] = s
	}
}
