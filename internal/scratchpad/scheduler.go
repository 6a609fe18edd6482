package scratchpad

import "time"

// Timer is a cancellable handle for a scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d has elapsed.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ClockScheduler schedules callbacks on the runtime timer.
var ClockScheduler Scheduler = clockScheduler{}
