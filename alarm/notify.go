package alarm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"tagsim/config"
)

// Notifier delivers one alarm notification on one channel.
type Notifier interface {
	Send(n Notification) error
}

// BuildNotifiers wires the configured channel transports. The log
// channel is always available; the others are present only when enabled.
func BuildNotifiers(cfg config.NotificationsConfig) map[string]Notifier {
	out := map[string]Notifier{
		"log": &LogNotifier{},
	}
	if cfg.Email.Enabled {
		out["email"] = &EmailNotifier{cfg: cfg.Email}
	}
	if cfg.Webhook.Enabled {
		out["webhook"] = &WebhookNotifier{
			cfg:    cfg.Webhook,
			client: &http.Client{Timeout: 5 * time.Second},
		}
	}
	if cfg.SMS.Enabled {
		out["sms"] = &SMSNotifier{
			cfg:    cfg.SMS,
			client: &http.Client{Timeout: 5 * time.Second},
		}
	}
	return out
}

func subjectLine(n Notification) string {
	if n.Cleared {
		return fmt.Sprintf("[CLEARED] %s - %s", n.Alarm.RuleName, n.Alarm.Tag)
	}
	return fmt.Sprintf("[%s] %s - %s", n.Alarm.Priority, n.Alarm.RuleName, n.Alarm.Tag)
}

func bodyLine(n Notification) string {
	a := n.Alarm
	if n.Cleared {
		return fmt.Sprintf("CLEARED: %s: %s=%v (was %v). %s", a.RuleName, a.Tag, a.LastValue, a.TriggeredValue, a.Message)
	}
	return fmt.Sprintf("[%s] %s: %s=%v %s. %s", a.Priority, a.RuleName, a.Tag, a.TriggeredValue, a.Condition, a.Message)
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

// Send logs the notification.
func (l *LogNotifier) Send(n Notification) error {
	log.Printf("alarm: %s", bodyLine(n))
	return nil
}

// EmailNotifier delivers via SMTP.
type EmailNotifier struct {
	cfg config.EmailConfig
}

// Send builds and sends one message to all configured recipients.
func (e *EmailNotifier) Send(n Notification) error {
	if len(e.cfg.To) == 0 {
		return nil
	}
	a := n.Alarm
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", e.cfg.From)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(e.cfg.To, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n\r\n", subjectLine(n))
	fmt.Fprintf(&msg, "Alarm: %s\r\nPriority: %s\r\nTag: %s\r\nValue: %v\r\nCondition: %s\r\nMessage: %s\r\nTime: %s\r\nStatus: %s\r\n",
		a.RuleName, a.Priority, a.Tag, a.TriggeredValue, a.Condition, a.Message,
		a.TriggeredAt.Format("2006-01-02 15:04:05"), a.Status)

	addr := fmt.Sprintf("%s:%d", e.cfg.SMTPServer, e.cfg.SMTPPort)
	var auth smtp.Auth
	if e.cfg.Username != "" && e.cfg.Password != "" {
		auth = smtp.PlainAuth("", e.cfg.Username, e.cfg.Password, e.cfg.SMTPServer)
	}
	if err := smtp.SendMail(addr, auth, e.cfg.From, e.cfg.To, []byte(msg.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// WebhookNotifier posts a chat-style attachment payload to an HTTP
// endpoint (Slack-compatible webhook shape).
type WebhookNotifier struct {
	cfg    config.WebhookConfig
	client *http.Client
}

var priorityColors = map[string]string{
	PriorityInfo:     "#36a64f",
	PriorityWarning:  "#ff9900",
	PriorityCritical: "#ff0000",
}

// Send posts the notification payload.
func (w *WebhookNotifier) Send(n Notification) error {
	a := n.Alarm
	color, ok := priorityColors[a.Priority]
	if !ok {
		color = "#808080"
	}
	if n.Cleared {
		color = "#36a64f"
	}
	payload := map[string]interface{}{
		"attachments": []map[string]interface{}{{
			"color": color,
			"title": subjectLine(n),
			"text":  a.Message,
			"fields": []map[string]interface{}{
				{"title": "Tag", "value": a.Tag, "short": true},
				{"title": "Value", "value": fmt.Sprintf("%v", a.LastValue), "short": true},
				{"title": "Condition", "value": a.Condition, "short": true},
				{"title": "Status", "value": a.Status, "short": true},
			},
			"ts": a.TriggeredAt.Unix(),
		}},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := w.client.Post(w.cfg.URL, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// SMSNotifier delivers through an HTTP SMS gateway, one request per
// recipient.
type SMSNotifier struct {
	cfg    config.SMSConfig
	client *http.Client
}

// Send posts the notification to the gateway for every recipient. The
// first failure is returned but remaining recipients are still attempted.
func (s *SMSNotifier) Send(n Notification) error {
	var firstErr error
	for _, to := range s.cfg.ToNumbers {
		form := url.Values{
			"From": {s.cfg.FromNumber},
			"To":   {to},
			"Body": {bodyLine(n)},
		}
		req, err := http.NewRequest(http.MethodPost, s.cfg.GatewayURL, strings.NewReader(form.Encode()))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if s.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sms to %s: %w", to, err)
			}
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 && firstErr == nil {
			firstErr = fmt.Errorf("sms gateway returned %d for %s", resp.StatusCode, to)
		}
	}
	return firstErr
}
