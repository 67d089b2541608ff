package engine

import (
	"tagsim/alarm"
	"tagsim/tag"
)

// simEmitter adapts the engine's EventBus to the sim.EventEmitter interface.
type simEmitter struct {
	bus *EventBus
}

func (e *simEmitter) EmitTagUpdates(updates []tag.Update) {
	e.bus.Emit(Event{Type: EventTagUpdate, Payload: TagUpdateEvent{Updates: updates}})
}

// alarmEmitter adapts the engine's EventBus to the alarm.EventEmitter interface.
type alarmEmitter struct {
	bus *EventBus
}

func (e *alarmEmitter) EmitAlarmRaised(inst alarm.Instance) {
	e.bus.Emit(Event{Type: EventAlarmRaised, Payload: AlarmEvent{Alarm: inst}})
}

func (e *alarmEmitter) EmitAlarmCleared(inst alarm.Instance) {
	e.bus.Emit(Event{Type: EventAlarmCleared, Payload: AlarmEvent{Alarm: inst}})
}
