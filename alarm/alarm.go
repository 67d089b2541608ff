// Package alarm evaluates tag updates against threshold rules, tracks
// per-rule trigger state, and dispatches notifications with per-rule
// debouncing. State transitions are immediate; only the outbound
// notifications are rate-limited.
package alarm

import (
	"fmt"
	"time"

	"tagsim/config"
	"tagsim/tag"
)

// Priority levels.
const (
	PriorityInfo     = "INFO"
	PriorityWarning  = "WARNING"
	PriorityCritical = "CRITICAL"
)

// Instance statuses.
const (
	StatusActive  = "ACTIVE"
	StatusCleared = "CLEARED"
)

// Instance is the runtime state of one triggered rule.
type Instance struct {
	ID             string      `json:"id"`
	RuleName       string      `json:"rule_name"`
	Tag            string      `json:"tag"`
	Priority       string      `json:"priority"`
	Message        string      `json:"message"`
	Condition      string      `json:"condition"` // e.g. "> 24"
	Status         string      `json:"status"`
	TriggeredValue interface{} `json:"triggered_value"`
	LastValue      interface{} `json:"last_value"`
	TriggeredAt    time.Time   `json:"triggered_at"`
	LastUpdate     time.Time   `json:"last_update"`
	ClearedAt      *time.Time  `json:"cleared_at,omitempty"`
	ClearedValue   interface{} `json:"cleared_value,omitempty"`
	Acknowledged   bool        `json:"acknowledged"`
	AcknowledgedBy string      `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time  `json:"acknowledged_at,omitempty"`
}

// Notification is the payload handed to each channel transport.
type Notification struct {
	Alarm    Instance
	Cleared  bool
	Repeated bool
}

// evaluate applies a rule condition to a coerced tag value. Ordered
// comparisons require numeric operands; equality falls back to string
// comparison when either side is non-numeric.
func evaluate(value interface{}, condition string, threshold float64) bool {
	n, numeric := tag.NumericValue(value)
	switch condition {
	case ">":
		return numeric && n > threshold
	case ">=":
		return numeric && n >= threshold
	case "<":
		return numeric && n < threshold
	case "<=":
		return numeric && n <= threshold
	case "==":
		if numeric {
			return n == threshold
		}
		return fmt.Sprintf("%v", value) == fmt.Sprintf("%v", threshold)
	case "!=":
		if numeric {
			return n != threshold
		}
		return fmt.Sprintf("%v", value) != fmt.Sprintf("%v", threshold)
	}
	return false
}

func conditionString(r config.AlarmRule) string {
	return fmt.Sprintf("%s %v", r.Condition, r.Threshold)
}
