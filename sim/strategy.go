package sim

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"tagsim/tag"
)

// Strategy computes a tag's next value from its previous value and the
// time elapsed since the engine started.
type Strategy interface {
	Next(prev interface{}, elapsed time.Duration) interface{}
}

// NewStrategy builds a strategy from a config descriptor. The returned
// value is not safe for concurrent use; the engine calls it only from the
// tick goroutine.
func NewStrategy(cfg tag.StrategyConfig, rng *rand.Rand) (Strategy, error) {
	switch cfg.Kind {
	case tag.StrategyRandom:
		if cfg.Min > cfg.Max {
			return nil, fmt.Errorf("random strategy: min %v > max %v", cfg.Min, cfg.Max)
		}
		return &randomStrategy{min: cfg.Min, max: cfg.Max, rng: rng}, nil
	case tag.StrategySine:
		if cfg.Period <= 0 {
			return nil, fmt.Errorf("sine strategy: period must be > 0, got %v", cfg.Period)
		}
		return &sineStrategy{offset: cfg.Offset, amplitude: cfg.Amplitude, period: cfg.Period}, nil
	case tag.StrategyIncrement:
		return &incrementStrategy{step: cfg.Step, min: cfg.Min, max: cfg.Max, resetOnMax: cfg.ResetOnMax}, nil
	case tag.StrategyStatic, "":
		return staticStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown strategy kind %q", cfg.Kind)
}

// randomStrategy draws uniformly in [min, max], independent of the
// previous value. Not a random walk.
type randomStrategy struct {
	min, max float64
	rng      *rand.Rand
}

func (s *randomStrategy) Next(_ interface{}, _ time.Duration) interface{} {
	return s.min + s.rng.Float64()*(s.max-s.min)
}

// sineStrategy is offset + amplitude*sin(2π*elapsed/period).
type sineStrategy struct {
	offset, amplitude, period float64
}

func (s *sineStrategy) Next(_ interface{}, elapsed time.Duration) interface{} {
	return s.offset + s.amplitude*math.Sin(2*math.Pi*elapsed.Seconds()/s.period)
}

// incrementStrategy adds step each tick. Past max it wraps to min when
// resetOnMax is set, otherwise it clamps at max.
type incrementStrategy struct {
	step, min, max float64
	resetOnMax     bool
}

func (s *incrementStrategy) Next(prev interface{}, _ time.Duration) interface{} {
	cur, ok := tag.NumericValue(prev)
	if !ok {
		cur = s.min
	}
	next := cur + s.step
	if s.max != 0 || s.resetOnMax {
		if next > s.max {
			if s.resetOnMax {
				return s.min
			}
			return s.max
		}
	}
	return next
}

// staticStrategy never changes the value.
type staticStrategy struct{}

func (staticStrategy) Next(prev interface{}, _ time.Duration) interface{} { return prev }
