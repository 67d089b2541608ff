package www

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tagsim/alarm"
	"tagsim/config"
	"tagsim/engine"
	"tagsim/store"
	"tagsim/tag"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Defaults()
	cfg.TickRate = time.Hour // no ticks during the test
	cfg.Alarms.Enabled = true
	cfg.Tags = []tag.Definition{
		{Name: "Temperature", Type: tag.TypeFloat, Initial: 20.0},
		{Name: "Counter", Type: tag.TypeInt, Simulate: true,
			Strategy: tag.StrategyConfig{Kind: tag.StrategyIncrement, Step: 1, Max: 100}},
	}
	eng, err := engine.New(engine.Config{AppConfig: cfg})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	eng.Start()

	router, stop := NewRouter(eng)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		stop()
		eng.Stop()
	})
	return srv
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	resp.Body.Close()
	return resp
}

func TestHealth(t *testing.T) {
	srv := testServer(t)
	var body map[string]interface{}
	resp := getJSON(t, srv.URL+"/api/health", &body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["tags"].(float64) != 2 {
		t.Errorf("tags = %v", body["tags"])
	}
}

func TestListTags(t *testing.T) {
	srv := testServer(t)
	var states []tag.State
	getJSON(t, srv.URL+"/api/tags", &states)
	if len(states) != 2 {
		t.Fatalf("states = %d", len(states))
	}
	// Snapshot is sorted by name.
	if states[0].Name != "Counter" || states[1].Name != "Temperature" {
		t.Errorf("order = %s, %s", states[0].Name, states[1].Name)
	}
}

func TestGetTag(t *testing.T) {
	srv := testServer(t)
	var state tag.State
	resp := getJSON(t, srv.URL+"/api/tags/Temperature", &state)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if state.Value.(float64) != 20.0 {
		t.Errorf("value = %v", state.Value)
	}
}

func TestGetUnknownTag(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/api/tags/Missing")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestWriteTag(t *testing.T) {
	srv := testServer(t)
	resp := postJSON(t, srv.URL+"/api/tags/Temperature", `{"value": 42.5}`)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestWriteTagBadValue(t *testing.T) {
	srv := testServer(t)
	resp := postJSON(t, srv.URL+"/api/tags/Temperature", `{"value": "not a number"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestActiveAlarmsEmpty(t *testing.T) {
	srv := testServer(t)
	var alarms []interface{}
	resp := getJSON(t, srv.URL+"/api/alarms/active", &alarms)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(alarms) != 0 {
		t.Errorf("alarms = %d", len(alarms))
	}
}

func TestAlarmHistoryBadLimit(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/api/alarms/history?limit=-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAlarmHistoryFromDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "alarms.db")

	// Seed a transition from a previous run, then start fresh on the
	// same file. The ring is empty but the database branch still
	// serves the old event.
	seed, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	inst := alarm.Instance{
		ID:             "prior-run",
		RuleName:       "HighTemp",
		Tag:            "Temperature",
		Priority:       "high",
		Message:        "Temperature high",
		Condition:      "> 24",
		Status:         alarm.StatusCleared,
		TriggeredValue: 30.0,
		TriggeredAt:    time.Now().Add(-time.Hour),
		LastUpdate:     time.Now().Add(-time.Hour),
	}
	if err := seed.InsertAlarmEvent(inst); err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	seed.Close()

	cfg := config.Defaults()
	cfg.TickRate = time.Hour
	cfg.Alarms.Enabled = true
	cfg.Alarms.DatabasePath = dbPath
	cfg.Tags = []tag.Definition{
		{Name: "Temperature", Type: tag.TypeFloat, Initial: 20.0},
	}
	eng, err := engine.New(engine.Config{AppConfig: cfg})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	eng.Start()
	router, stop := NewRouter(eng)
	srv := httptest.NewServer(router)
	defer func() {
		srv.Close()
		stop()
		eng.Stop()
	}()

	var empty []interface{}
	getJSON(t, srv.URL+"/api/alarms/history", &empty)
	if len(empty) != 0 {
		t.Fatalf("ring history = %d, want 0", len(empty))
	}

	var events []store.AlarmEvent
	resp := getJSON(t, srv.URL+"/api/alarms/history?source=db", &events)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if len(events) != 1 {
		t.Fatalf("db history = %d, want 1", len(events))
	}
	if events[0].RuleName != "HighTemp" || events[0].Status != alarm.StatusCleared {
		t.Errorf("event = %+v", events[0])
	}
}

func TestAlarmHistoryDatabaseNotConfigured(t *testing.T) {
	srv := testServer(t)
	resp, err := http.Get(srv.URL + "/api/alarms/history?source=db")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestAcknowledgeWithoutActiveAlarm(t *testing.T) {
	srv := testServer(t)
	resp := postJSON(t, srv.URL+"/api/alarms/SomeRule/ack", `{"user":"op"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestListPublishers(t *testing.T) {
	srv := testServer(t)
	var statuses []map[string]interface{}
	getJSON(t, srv.URL+"/api/publishers", &statuses)
	if len(statuses) != 6 {
		t.Fatalf("publishers = %d", len(statuses))
	}
	for _, s := range statuses {
		if s["enabled"].(bool) {
			t.Errorf("publisher %v enabled by default", s["name"])
		}
	}
}

func TestEnableUnknownPublisher(t *testing.T) {
	srv := testServer(t)
	resp := postJSON(t, srv.URL+"/api/publishers/nope/enable", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestSSEStreamsTagUpdates(t *testing.T) {
	srv := testServer(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect sse: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// A write-back flows through the bus and out the stream.
	// Give the SSE client a moment to register first.
	time.Sleep(50 * time.Millisecond)
	postJSON(t, srv.URL+"/api/tags/Temperature", `{"value": 99}`)

	done := make(chan string, 1)
	go func() {
		buf := make([]byte, 4096)
		var acc strings.Builder
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				acc.WriteString(string(buf[:n]))
				if strings.Contains(acc.String(), "tag-update") {
					done <- acc.String()
					return
				}
			}
			if err != nil {
				done <- acc.String()
				return
			}
		}
	}()

	select {
	case got := <-done:
		if !strings.Contains(got, "tag-update") {
			t.Errorf("stream = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no tag-update event on SSE stream")
	}
}
