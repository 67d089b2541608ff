package store

import (
	"path/filepath"
	"testing"
	"time"

	"tagsim/alarm"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleInstance(status string) alarm.Instance {
	inst := alarm.Instance{
		ID:             "abc-123",
		RuleName:       "High Temperature",
		Tag:            "Temperature",
		Priority:       alarm.PriorityCritical,
		Condition:      "> 24",
		Message:        "too hot",
		Status:         status,
		TriggeredValue: 25.5,
		LastValue:      25.5,
		TriggeredAt:    time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
		LastUpdate:     time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}
	if status == alarm.StatusCleared {
		at := time.Date(2026, 8, 28, 10, 5, 0, 0, time.UTC)
		inst.ClearedAt = &at
		inst.ClearedValue = 22.0
	}
	return inst
}

func TestInsertAndList(t *testing.T) {
	db := openTestDB(t)

	if err := db.InsertAlarmEvent(sampleInstance(alarm.StatusActive)); err != nil {
		t.Fatalf("insert trigger: %v", err)
	}
	if err := db.InsertAlarmEvent(sampleInstance(alarm.StatusCleared)); err != nil {
		t.Fatalf("insert clear: %v", err)
	}

	events, err := db.ListAlarmEvents(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("events = %d", len(events))
	}
	// Newest first.
	if events[0].Status != alarm.StatusCleared || events[1].Status != alarm.StatusActive {
		t.Errorf("order = %s, %s", events[0].Status, events[1].Status)
	}
	if events[1].ClearedAt != nil {
		t.Error("trigger row should have nil cleared_at")
	}
	if events[0].ClearedAt == nil || events[0].ClearedValue == nil {
		t.Error("clear row missing cleared fields")
	}
	if events[0].TriggeredValue != "25.5" {
		t.Errorf("triggered_value = %q", events[0].TriggeredValue)
	}
}

func TestListLimit(t *testing.T) {
	db := openTestDB(t)
	for i := 0; i < 5; i++ {
		if err := db.InsertAlarmEvent(sampleInstance(alarm.StatusActive)); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	events, err := db.ListAlarmEvents(3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("events = %d", len(events))
	}
}

func TestPurge(t *testing.T) {
	db := openTestDB(t)
	old := sampleInstance(alarm.StatusActive)
	old.TriggeredAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if err := db.InsertAlarmEvent(old); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := db.InsertAlarmEvent(sampleInstance(alarm.StatusActive)); err != nil {
		t.Fatalf("insert: %v", err)
	}

	removed, err := db.PurgeAlarmEventsBefore(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d", removed)
	}
	events, _ := db.ListAlarmEvents(0)
	if len(events) != 1 {
		t.Errorf("events = %d", len(events))
	}
}

func TestOpenCreatesSchemaIdempotently(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alarms.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.Close()
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	db2.Close()
}
