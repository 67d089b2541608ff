package tag

import (
	"testing"
	"time"
)

func TestCoerceInt(t *testing.T) {
	cases := []struct {
		in   interface{}
		want int64
	}{
		{42, 42},
		{int64(7), 7},
		{3.9, 3}, // truncates, not rounds
		{float32(-2.7), -2},
		{"15", 15},
	}
	for _, c := range cases {
		got, err := Coerce(TypeInt, c.in)
		if err != nil {
			t.Fatalf("Coerce(int, %v): %v", c.in, err)
		}
		if got.(int64) != c.want {
			t.Errorf("Coerce(int, %v) = %v, want %d", c.in, got, c.want)
		}
	}
}

func TestCoerceFloat(t *testing.T) {
	got, err := Coerce(TypeFloat, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got.(float64) != 3.0 {
		t.Errorf("got %v", got)
	}
	if _, err := Coerce(TypeFloat, "not a number"); err == nil {
		t.Error("expected error for non-numeric string")
	}
}

func TestCoerceBoolAndString(t *testing.T) {
	if v, err := Coerce(TypeBool, "true"); err != nil || v.(bool) != true {
		t.Errorf("bool coerce: %v %v", v, err)
	}
	if _, err := Coerce(TypeBool, 3.5); err == nil {
		t.Error("expected error coercing float to bool")
	}
	if v, _ := Coerce(TypeString, int64(9)); v.(string) != "9" {
		t.Errorf("string coerce: %v", v)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	_, err := NewRegistry([]Definition{
		{Name: "A", Type: TypeInt},
		{Name: "A", Type: TypeFloat},
	})
	if err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestRegistryInitialCoercion(t *testing.T) {
	r, err := NewRegistry([]Definition{
		{Name: "Count", Type: TypeInt, Initial: 5.7},
	})
	if err != nil {
		t.Fatal(err)
	}
	s, ok := r.Get("Count")
	if !ok {
		t.Fatal("tag missing")
	}
	if s.Value.(int64) != 5 {
		t.Errorf("initial = %v, want 5", s.Value)
	}
}

func TestRegistryCommitAtomicSnapshot(t *testing.T) {
	r, err := NewRegistry([]Definition{
		{Name: "A", Type: TypeFloat, Initial: 1.0},
		{Name: "B", Type: TypeFloat, Initial: 1.0},
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := time.Now()
	r.Commit([]Update{
		{Tag: "A", Type: TypeFloat, Value: 2.0, Timestamp: ts},
		{Tag: "B", Type: TypeFloat, Value: 3.0, Timestamp: ts},
	})

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot size %d", len(snap))
	}
	if snap[0].Value.(float64) != 2.0 || snap[1].Value.(float64) != 3.0 {
		t.Errorf("snapshot values %v %v", snap[0].Value, snap[1].Value)
	}
	if !snap[0].LastUpdated.Equal(ts) {
		t.Errorf("timestamp not applied")
	}
}

func TestRegistryCommitIgnoresUnknownTag(t *testing.T) {
	r, _ := NewRegistry([]Definition{{Name: "A", Type: TypeInt}})
	r.Commit([]Update{{Tag: "nope", Value: int64(1), Timestamp: time.Now()}})
	if r.Count() != 1 {
		t.Errorf("count = %d", r.Count())
	}
}
