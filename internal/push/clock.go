package push

import "time"

// Clock supplies wall time in milliseconds since the Unix epoch.
type Clock interface {
	WallTime() int64
}

// SystemClock reads the process wall clock.
type SystemClock struct{}

func (SystemClock) WallTime() int64 { return time.Now().UnixMilli() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

func (f ClockFunc) WallTime() int64 { return f() }
