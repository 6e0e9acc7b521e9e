package push

import (
	"math/rand"
	"time"
)

const (
	// Publishing is placed in the first 80% of a step so it does not spill into the next one.
	publishWindowFraction = 0.8

	// Keeps the first publish at least 2ms into a step, after the step boundary rolls over.
	stepMarginMillis = 2
)

// DelayCalculator computes the delay before the first publish of a schedule.
type DelayCalculator struct {
	clock Clock
	rand  func() float64
}

// NewDelayCalculator returns a calculator reading clock. rnd must return values
// in [0, 1); nil selects math/rand.
func NewDelayCalculator(clock Clock, rnd func() float64) *DelayCalculator {
	if clock == nil {
		clock = SystemClock{}
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	return &DelayCalculator{clock: clock, rand: rnd}
}

// InitialDelay returns the time to wait until the first publish.
//
// The result is the time to the next step boundary, plus 2ms, plus a random
// offset in [0, 80% of step - 2ms], so the publish lands between 2ms and 80%
// into the following step. step must be at least 1ms.
func (c *DelayCalculator) InitialDelay(step time.Duration) time.Duration {
	stepMillis := step.Milliseconds()

	randomOffsetWithinStep := max(0, int64(float64(stepMillis)*c.rand()*publishWindowFraction)-stepMarginMillis)

	sinceStepStart := c.clock.WallTime() % stepMillis
	if sinceStepStart < 0 {
		sinceStepStart += stepMillis
	}
	offsetToNextStepStart := stepMillis - sinceStepStart

	return time.Duration(offsetToNextStepStart+stepMarginMillis+randomOffsetWithinStep) * time.Millisecond
}
