package runloop

import (
	"time"

	"github.com/dshills/runloop/internal/runnable"
	"github.com/dshills/runloop/internal/timerwheel"
)

// NewTimer schedules a task on the loop's timer wheel: one-shot when repeat
// is false, repeating until deleted when true. Owning thread only; timers
// are not cross-thread objects. To schedule from another thread, push a
// runnable that creates the timer.
func (l *EventLoop) NewTimer(length time.Duration, repeat bool, task runnable.Runnable) timerwheel.TimerID {
	l.assertThreadIsCurrent("NewTimer")
	repeatCount := 0
	if repeat {
		repeatCount = timerwheel.RepeatForever
	}
	return l.timers.NewTimer(l.clock(), length, 0, repeatCount, task)
}

// ScheduleTimer is the full-contract variant: explicit start offset and
// repeat count (0 one-shot, RepeatForever infinite, positive N fires N
// times). Owning thread only.
func (l *EventLoop) ScheduleTimer(length, startOffset time.Duration, repeatCount int, task runnable.Runnable) timerwheel.TimerID {
	l.assertThreadIsCurrent("ScheduleTimer")
	return l.timers.NewTimer(l.clock(), length, startOffset, repeatCount, task)
}

// GetTimer returns the loop's timer with the given ID, or nil if it no
// longer exists. Owning thread only.
func (l *EventLoop) GetTimer(id timerwheel.TimerID) *timerwheel.Timer {
	l.assertThreadIsCurrent("GetTimer")
	return l.timers.GetTimer(id)
}

// DeleteTimer cancels the loop's timer with the given ID. Deleting an
// unknown timer is a fatal programming error. Owning thread only.
func (l *EventLoop) DeleteTimer(id timerwheel.TimerID) {
	l.assertThreadIsCurrent("DeleteTimer")
	l.timers.DeleteTimer(id)
}

// ActiveTimerCount returns the number of scheduled timers. Owning thread
// only.
func (l *EventLoop) ActiveTimerCount() int {
	l.assertThreadIsCurrent("ActiveTimerCount")
	return l.timers.ActiveTimerCount()
}
