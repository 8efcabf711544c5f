package clock

import "time"

// Clock supplies wall-clock time. Countdown math always recomputes from a
// Clock instead of decrementing counters, so suspend/resume or clock
// adjustment cannot desynchronize a display from its true deadline.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the real wall clock.
func System() Clock { return systemClock{} }
