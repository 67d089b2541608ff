package engine

import (
	"time"

	"tagsim/alarm"
	"tagsim/tag"
)

// EventType identifies the kind of event emitted by the Engine.
type EventType int

const (
	// Simulation events
	EventTagUpdate EventType = iota + 1

	// Alarm events
	EventAlarmRaised
	EventAlarmCleared

	// Publisher events
	EventPublisherState
)

// Event is the envelope emitted by the Engine's EventBus.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   interface{}
}

// TagUpdateEvent carries one simulation tick's worth of tag updates,
// or a single external write.
type TagUpdateEvent struct {
	Updates []tag.Update
}

// AlarmEvent is emitted when a rule triggers or clears.
type AlarmEvent struct {
	Alarm alarm.Instance
}

// PublisherStateEvent is emitted when a publisher is enabled or disabled
// at runtime.
type PublisherStateEvent struct {
	Name    string
	Enabled bool
}
