// Package store persists alarm transitions to SQLite so history
// survives restarts. One table, one writer; the in-memory ring in the
// alarm engine stays the hot path and this is the durable trail behind
// it.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"tagsim/alarm"
)

// DB is the alarm history database handle.
type DB struct {
	*sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS alarm_events (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    instance_id     TEXT NOT NULL,
    rule_name       TEXT NOT NULL,
    tag             TEXT NOT NULL,
    priority        TEXT NOT NULL,
    condition       TEXT NOT NULL,
    message         TEXT NOT NULL DEFAULT '',
    status          TEXT NOT NULL,
    triggered_value TEXT NOT NULL DEFAULT '',
    cleared_value   TEXT,
    triggered_at    TEXT NOT NULL,
    cleared_at      TEXT,
    recorded_at     TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE INDEX IF NOT EXISTS idx_alarm_events_rule ON alarm_events(rule_name, recorded_at);
`

// Open creates the database file if needed and ensures the schema.
// WAL keeps readers off the writer's back; the single connection keeps
// SQLITE_BUSY out of the picture entirely since the alarm engine is
// the only writer.
func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open alarm db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ensure alarm schema: %w", err)
	}
	return &DB{sqlDB}, nil
}

// AlarmEvent is one persisted alarm transition row.
type AlarmEvent struct {
	ID             int64   `json:"id"`
	InstanceID     string  `json:"instance_id"`
	RuleName       string  `json:"rule_name"`
	Tag            string  `json:"tag"`
	Priority       string  `json:"priority"`
	Condition      string  `json:"condition"`
	Message        string  `json:"message"`
	Status         string  `json:"status"`
	TriggeredValue string  `json:"triggered_value"`
	ClearedValue   *string `json:"cleared_value,omitempty"`
	TriggeredAt    string  `json:"triggered_at"`
	ClearedAt      *string `json:"cleared_at,omitempty"`
	RecordedAt     string  `json:"recorded_at"`
}

const timeLayout = "2006-01-02 15:04:05"

// InsertAlarmEvent records one trigger or clear transition.
func (db *DB) InsertAlarmEvent(inst alarm.Instance) error {
	var clearedVal, clearedAt *string
	if inst.ClearedValue != nil {
		s := fmt.Sprintf("%v", inst.ClearedValue)
		clearedVal = &s
	}
	if inst.ClearedAt != nil {
		s := inst.ClearedAt.Format(timeLayout)
		clearedAt = &s
	}
	_, err := db.Exec(`INSERT INTO alarm_events
		(instance_id, rule_name, tag, priority, condition, message, status, triggered_value, cleared_value, triggered_at, cleared_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inst.ID, inst.RuleName, inst.Tag, inst.Priority, inst.Condition, inst.Message,
		inst.Status, fmt.Sprintf("%v", inst.TriggeredValue), clearedVal,
		inst.TriggeredAt.Format(timeLayout), clearedAt)
	return err
}

// ListAlarmEvents returns the most recent events, newest first. A limit
// of zero or less returns up to 100 rows.
func (db *DB) ListAlarmEvents(limit int) ([]AlarmEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, instance_id, rule_name, tag, priority, condition, message, status,
		       triggered_value, cleared_value, triggered_at, cleared_at, recorded_at
		FROM alarm_events
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []AlarmEvent
	for rows.Next() {
		var e AlarmEvent
		if err := rows.Scan(&e.ID, &e.InstanceID, &e.RuleName, &e.Tag, &e.Priority, &e.Condition,
			&e.Message, &e.Status, &e.TriggeredValue, &e.ClearedValue, &e.TriggeredAt, &e.ClearedAt, &e.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// PurgeAlarmEventsBefore deletes rows older than the cutoff. Returns the
// number of rows removed.
func (db *DB) PurgeAlarmEventsBefore(cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM alarm_events WHERE triggered_at < ?`, cutoff.Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
