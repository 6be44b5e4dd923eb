package clock

import "time"

// Clock provides current time for dedup expiry and readable alert times.
type Clock interface {
	Now() time.Time
}

// RealClock reads local wall-clock time so readable times match the host zone.
type RealClock struct{}

// Now returns current local time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// Func adapts a plain function to Clock.
type Func func() time.Time

// Now calls f.
func (f Func) Now() time.Time {
	return f()
}
