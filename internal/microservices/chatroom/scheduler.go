package chatroom

import "time"

// Timer is a cancellable deferred callback
type Timer interface {
	Stop() bool
}

// Scheduler arms deferred callbacks. The controller never sleeps; every
// delay is modeled as a callback fired by the scheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

// WallScheduler fires callbacks on runtime timers
func WallScheduler() Scheduler {
	return wallScheduler{}
}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
