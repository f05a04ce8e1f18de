package bus

import "time"

// TicksPerSecond is the host simulation rate. Timeouts in the protocol are
// expressed in ticks.
const TicksPerSecond = 20

// Tick is the wall-clock length of a single host tick.
const Tick = time.Second / TicksPerSecond

// Ticks converts a tick count to a duration.
func Ticks(n int) time.Duration { return time.Duration(n) * Tick }

// Timer is a one-shot timer handle.
type Timer interface {
	// Stop prevents the timer from firing. It reports whether the call stopped it.
	Stop() bool
}

// Scheduler runs callbacks after a delay.
type Scheduler interface {
	RunAfterDelay(f func(), d time.Duration) Timer
}

// SystemScheduler schedules on the Go runtime timers.
type SystemScheduler struct{}

func (SystemScheduler) RunAfterDelay(f func(), d time.Duration) Timer {
	return time.AfterFunc(d, f)
}
