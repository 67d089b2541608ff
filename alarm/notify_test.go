package alarm

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tagsim/config"
)

func sampleNotification(cleared bool) Notification {
	return Notification{
		Alarm: Instance{
			ID:             "test-id",
			RuleName:       "High Temperature",
			Tag:            "Temperature",
			Priority:       PriorityCritical,
			Message:        "Temperature is too high",
			Condition:      "> 24",
			Status:         StatusActive,
			TriggeredValue: 25.5,
			LastValue:      25.5,
			TriggeredAt:    time.Unix(1700000000, 0),
			LastUpdate:     time.Unix(1700000000, 0),
		},
		Cleared: cleared,
	}
}

func TestWebhookPayload(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("payload not JSON: %v", err)
		}
	}))
	defer srv.Close()

	wh := &WebhookNotifier{
		cfg:    config.WebhookConfig{URL: srv.URL},
		client: srv.Client(),
	}
	if err := wh.Send(sampleNotification(false)); err != nil {
		t.Fatalf("send: %v", err)
	}

	atts, ok := body["attachments"].([]interface{})
	if !ok || len(atts) != 1 {
		t.Fatalf("attachments = %v", body["attachments"])
	}
	att := atts[0].(map[string]interface{})
	if att["color"] != "#ff0000" {
		t.Errorf("color = %v, want critical red", att["color"])
	}
	if !strings.Contains(att["title"].(string), "High Temperature") {
		t.Errorf("title = %v", att["title"])
	}
}

func TestWebhookClearedUsesGreen(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &body)
	}))
	defer srv.Close()

	wh := &WebhookNotifier{
		cfg:    config.WebhookConfig{URL: srv.URL},
		client: srv.Client(),
	}
	if err := wh.Send(sampleNotification(true)); err != nil {
		t.Fatalf("send: %v", err)
	}
	att := body["attachments"].([]interface{})[0].(map[string]interface{})
	if att["color"] != "#36a64f" {
		t.Errorf("color = %v, want green for cleared", att["color"])
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wh := &WebhookNotifier{
		cfg:    config.WebhookConfig{URL: srv.URL},
		client: srv.Client(),
	}
	if err := wh.Send(sampleNotification(false)); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestSMSOneRequestPerRecipient(t *testing.T) {
	var mu struct {
		requests []map[string]string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.requests = append(mu.requests, map[string]string{
			"to":   r.PostFormValue("To"),
			"from": r.PostFormValue("From"),
			"auth": r.Header.Get("Authorization"),
		})
	}))
	defer srv.Close()

	sms := &SMSNotifier{
		cfg: config.SMSConfig{
			GatewayURL: srv.URL,
			APIKey:     "secret",
			FromNumber: "+15550001111",
			ToNumbers:  []string{"+15550002222", "+15550003333"},
		},
		client: srv.Client(),
	}
	if err := sms.Send(sampleNotification(false)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mu.requests) != 2 {
		t.Fatalf("requests = %d", len(mu.requests))
	}
	if mu.requests[0]["to"] != "+15550002222" || mu.requests[1]["to"] != "+15550003333" {
		t.Errorf("recipients = %v", mu.requests)
	}
	if mu.requests[0]["auth"] != "Bearer secret" {
		t.Errorf("auth = %q", mu.requests[0]["auth"])
	}
}

func TestSMSContinuesAfterFailure(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		to := r.PostFormValue("To")
		seen = append(seen, to)
		if to == "+15550002222" {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	sms := &SMSNotifier{
		cfg: config.SMSConfig{
			GatewayURL: srv.URL,
			ToNumbers:  []string{"+15550002222", "+15550003333"},
		},
		client: srv.Client(),
	}
	err := sms.Send(sampleNotification(false))
	if err == nil {
		t.Fatal("expected first failure to surface")
	}
	if len(seen) != 2 {
		t.Errorf("requests = %d, want all recipients attempted", len(seen))
	}
}

func TestBuildNotifiers(t *testing.T) {
	cfg := config.NotificationsConfig{}
	cfg.Webhook.Enabled = true
	cfg.Webhook.URL = "http://example.invalid/hook"

	notifiers := BuildNotifiers(cfg)
	if _, ok := notifiers["log"]; !ok {
		t.Error("log channel should always exist")
	}
	if _, ok := notifiers["webhook"]; !ok {
		t.Error("webhook channel missing")
	}
	if _, ok := notifiers["email"]; ok {
		t.Error("email channel should be absent when disabled")
	}
	if _, ok := notifiers["sms"]; ok {
		t.Error("sms channel should be absent when disabled")
	}
}

func TestEvaluateConditions(t *testing.T) {
	cases := []struct {
		value     interface{}
		condition string
		threshold float64
		want      bool
	}{
		{25.0, ">", 24, true},
		{24.0, ">", 24, false},
		{24.0, ">=", 24, true},
		{int64(3), "<", 4, true},
		{int64(4), "<=", 4, true},
		{5.0, "==", 5, true},
		{5.0, "!=", 5, false},
		{"running", "==", 5, false},
		{"running", "!=", 5, true},
		{true, ">", 0, true}, // booleans compare as 1/0
		{false, ">", 0, false},
		{"abc", "<", 10, false}, // ordered comparison needs numeric operand
	}
	for _, c := range cases {
		if got := evaluate(c.value, c.condition, c.threshold); got != c.want {
			t.Errorf("evaluate(%v, %q, %v) = %v, want %v", c.value, c.condition, c.threshold, got, c.want)
		}
	}
}
