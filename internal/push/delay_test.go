package push

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

func fixedRand(v float64) func() float64 { return func() float64 { return v } }

func TestInitialDelayScenario(t *testing.T) {
	t.Parallel()
	step := 10 * time.Second
	// now mod step = 3s
	clock := ClockFunc(func() int64 { return 1_700_000_000_000 + 3_000 })

	tests := []struct {
		name string
		r    float64
		want time.Duration
	}{
		{name: "no jitter", r: 0, want: 7_002 * time.Millisecond},
		{name: "small jitter absorbed by margin", r: 0.0002, want: 7_002 * time.Millisecond},
		{name: "half", r: 0.5, want: (7_000 + 2 + 3_998) * time.Millisecond},
		{name: "upper bound", r: math.Nextafter(1, 0), want: (7_000 + 2 + 7_997) * time.Millisecond},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := NewDelayCalculator(clock, fixedRand(tt.r)).InitialDelay(step)
			if got != tt.want {
				t.Fatalf("InitialDelay = %v, want %v", got, tt.want)
			}
			if got >= 2*step {
				t.Fatalf("InitialDelay = %v, want < %v", got, 2*step)
			}
		})
	}
}

func TestInitialDelayAtStepBoundary(t *testing.T) {
	t.Parallel()
	clock := ClockFunc(func() int64 { return 60_000 })
	got := NewDelayCalculator(clock, fixedRand(0)).InitialDelay(time.Minute)
	// Exactly on a boundary the next boundary is a full step away.
	if want := time.Minute + 2*time.Millisecond; got != want {
		t.Fatalf("InitialDelay = %v, want %v", got, want)
	}
}

func TestInitialDelayLandsInFirst80PercentOfStep(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(42))
	steps := []time.Duration{10 * time.Millisecond, time.Second, 10 * time.Second, time.Minute, 5 * time.Minute}

	for _, step := range steps {
		stepMillis := step.Milliseconds()
		for i := 0; i < 2_000; i++ {
			now := rng.Int63n(1 << 42)
			r := rng.Float64()
			if i == 0 {
				r = 0
			}
			if i == 1 {
				r = math.Nextafter(1, 0)
			}
			d := NewDelayCalculator(ClockFunc(func() int64 { return now }), fixedRand(r)).InitialDelay(step)
			ms := d.Milliseconds()

			if ms < 2 {
				t.Fatalf("step=%v now=%d r=%v: delay %dms < 2ms", step, now, r, ms)
			}
			if ms >= stepMillis+2+int64(float64(stepMillis)*publishWindowFraction) {
				t.Fatalf("step=%v now=%d r=%v: delay %dms too large", step, now, r, ms)
			}
			phase := (now + ms) % stepMillis
			if phase < 2 || float64(phase) > float64(stepMillis)*publishWindowFraction {
				t.Fatalf("step=%v now=%d r=%v: publish lands %dms into step, outside [2, %v]", step, now, r, phase, float64(stepMillis)*publishWindowFraction)
			}
		}
	}
}

func TestInitialDelayDefaultsToSystemClock(t *testing.T) {
	t.Parallel()
	d := NewDelayCalculator(nil, nil).InitialDelay(time.Second)
	if d < 2*time.Millisecond || d >= 2*time.Second {
		t.Fatalf("InitialDelay = %v out of range", d)
	}
}
