package tag

import (
	"fmt"
	"strconv"
	"time"
)

// Type is the value type of a tag, fixed for the tag's lifetime.
type Type string

const (
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
	TypeBool   Type = "bool"
	TypeString Type = "string"
)

// ParseType validates a type string from config.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeInt, TypeFloat, TypeBool, TypeString:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown tag type %q", s)
}

// StrategyKind identifies a simulation strategy.
type StrategyKind string

const (
	StrategyRandom    StrategyKind = "random"
	StrategySine      StrategyKind = "sine"
	StrategyIncrement StrategyKind = "increment"
	StrategyStatic    StrategyKind = "static"
)

// StrategyConfig is the simulation strategy descriptor loaded from config.
// Only the fields relevant to the kind are used.
type StrategyConfig struct {
	Kind       StrategyKind `yaml:"kind"       json:"kind"`
	Min        float64      `yaml:"min"        json:"min"`
	Max        float64      `yaml:"max"        json:"max"`
	Offset     float64      `yaml:"offset"     json:"offset"`
	Amplitude  float64      `yaml:"amplitude"  json:"amplitude"`
	Period     float64      `yaml:"period"     json:"period"` // seconds
	Step       float64      `yaml:"step"       json:"step"`
	ResetOnMax bool         `yaml:"reset_on_max" json:"reset_on_max"`
}

// Definition describes a tag. Immutable after startup.
type Definition struct {
	Name     string         `yaml:"name"     json:"name"`
	Type     Type           `yaml:"type"     json:"type"`
	Simulate bool           `yaml:"simulate" json:"simulate"`
	Initial  interface{}    `yaml:"initial"  json:"initial"`
	Strategy StrategyConfig `yaml:"strategy" json:"strategy"`
}

// State is a snapshot of a tag's current value. Copies are handed to
// readers; the registry keeps the authoritative one.
type State struct {
	Name        string      `json:"name"`
	Type        Type        `json:"type"`
	Value       interface{} `json:"value"`
	LastUpdated time.Time   `json:"last_updated"`
}

// Update is the event emitted once per tag per simulation tick.
type Update struct {
	Tag       string      `json:"tag"`
	Type      Type        `json:"type"`
	Value     interface{} `json:"value"`
	Timestamp time.Time   `json:"timestamp"`
}

// Coerce converts v to the canonical representation for t: int64 for int
// tags (floats truncate), float64 for float tags, bool and string as-is.
// Coercion happens at write time so downstream publishers never see
// drifting types.
func Coerce(t Type, v interface{}) (interface{}, error) {
	switch t {
	case TypeInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float32:
			return int64(n), nil
		case float64:
			return int64(n), nil
		case string:
			i, err := strconv.ParseInt(n, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("coerce %q to int: %w", n, err)
			}
			return i, nil
		}
	case TypeFloat:
		switch n := v.(type) {
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		case float32:
			return float64(n), nil
		case float64:
			return n, nil
		case string:
			f, err := strconv.ParseFloat(n, 64)
			if err != nil {
				return nil, fmt.Errorf("coerce %q to float: %w", n, err)
			}
			return f, nil
		}
	case TypeBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			p, err := strconv.ParseBool(b)
			if err != nil {
				return nil, fmt.Errorf("coerce %q to bool: %w", b, err)
			}
			return p, nil
		}
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil
	}
	return nil, fmt.Errorf("cannot coerce %T to %s", v, t)
}

// NumericValue extracts a float64 from a coerced tag value, for strategy
// math and alarm threshold comparison.
func NumericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
