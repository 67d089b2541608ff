package sim

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"tagsim/tag"
)

func TestRandomStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	s, err := NewStrategy(tag.StrategyConfig{Kind: tag.StrategyRandom, Min: 10, Max: 20}, rng)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10000; i++ {
		v := s.Next(nil, 0).(float64)
		if v < 10 || v > 20 {
			t.Fatalf("draw %d out of bounds: %v", i, v)
		}
	}
}

func TestRandomRejectsInvertedBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := NewStrategy(tag.StrategyConfig{Kind: tag.StrategyRandom, Min: 5, Max: 1}, rng); err == nil {
		t.Fatal("expected error for min > max")
	}
}

func TestSineValues(t *testing.T) {
	s, err := NewStrategy(tag.StrategyConfig{Kind: tag.StrategySine, Offset: 20, Amplitude: 5, Period: 60}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Quarter period: sin(π/2) = 1 -> 25. Three quarters: sin(3π/2) = -1 -> 15.
	at15 := s.Next(nil, 15*time.Second).(float64)
	if math.Abs(at15-25) > 1e-9 {
		t.Errorf("value at 15s = %v, want 25", at15)
	}
	at45 := s.Next(nil, 45*time.Second).(float64)
	if math.Abs(at45-15) > 1e-9 {
		t.Errorf("value at 45s = %v, want 15", at45)
	}
}

func TestIncrementWraps(t *testing.T) {
	s, _ := NewStrategy(tag.StrategyConfig{Kind: tag.StrategyIncrement, Step: 1, Max: 5, ResetOnMax: true}, nil)
	want := []float64{1, 2, 3, 4, 5, 0, 1}
	cur := interface{}(float64(0))
	for i, w := range want {
		cur = s.Next(cur, 0)
		if cur.(float64) != w {
			t.Fatalf("step %d = %v, want %v", i, cur, w)
		}
	}
}

func TestIncrementClampsWithoutReset(t *testing.T) {
	s, _ := NewStrategy(tag.StrategyConfig{Kind: tag.StrategyIncrement, Step: 2, Max: 5}, nil)
	cur := interface{}(float64(4))
	cur = s.Next(cur, 0)
	if cur.(float64) != 5 {
		t.Fatalf("expected clamp at 5, got %v", cur)
	}
	cur = s.Next(cur, 0)
	if cur.(float64) != 5 {
		t.Fatalf("clamp should hold at 5, got %v", cur)
	}
}

func TestStaticNeverChanges(t *testing.T) {
	s, _ := NewStrategy(tag.StrategyConfig{Kind: tag.StrategyStatic}, nil)
	if v := s.Next(42.0, time.Hour); v.(float64) != 42.0 {
		t.Errorf("static changed value: %v", v)
	}
}

func TestUnknownStrategyKind(t *testing.T) {
	if _, err := NewStrategy(tag.StrategyConfig{Kind: "walk"}, nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
