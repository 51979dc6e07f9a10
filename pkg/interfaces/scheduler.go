package interfaces

import "time"

// Timer is a pending delayed action.
type Timer interface {
	// Stop cancels the action. It reports false if the action already fired or was stopped.
	Stop() bool
}

// Scheduler arms delayed actions. The production implementation wraps time.AfterFunc.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules with the runtime timer wheel.
type RealScheduler struct{}

// AfterFunc implements Scheduler.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
