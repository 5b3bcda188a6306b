// Package timerwheel tracks scheduled one-shot and repeating tasks for a
// single event loop, ordered by next-fire time.
//
// A Wheel is loop-exclusive: only the owning loop's thread may create,
// query, delete, or run timers. That precondition is enforced by the loop,
// not by locking here; timers are not cross-thread objects.
package timerwheel

import (
	"sort"
	"time"

	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/logging"
	"github.com/dshills/runloop/internal/runnable"
)

// RepeatForever is the repeat count sentinel for a timer that fires until
// deleted.
const RepeatForever = -1

// TimerID identifies a timer within one Wheel.
type TimerID int

// Timer is a scheduled task owned by a Wheel.
type Timer struct {
	id        TimerID
	created   time.Time
	expire    time.Time
	length    time.Duration
	// remaining firings: RepeatForever, or a positive count.
	remaining int
	seq       uint64
	task      runnable.Runnable
}

// ID returns the timer's identifier.
func (t *Timer) ID() TimerID { return t.id }

// Length returns the timer's interval.
func (t *Timer) Length() time.Duration { return t.length }

// Expire returns the timer's next-fire time.
func (t *Timer) Expire() time.Time { return t.expire }

// Wheel is the per-loop set of active timers.
type Wheel struct {
	// timers stays sorted by (expire, seq); seq is insertion order and
	// breaks ties between equal fire times.
	timers []*Timer
	nextID TimerID
	seq    uint64

	log *logging.Logger
	rep *fatal.Reporter
}

// Option configures a Wheel.
type Option func(*Wheel)

// WithLogger sets the logger for timer-task fault reports.
func WithLogger(l *logging.Logger) Option {
	return func(w *Wheel) {
		w.log = l
	}
}

// WithReporter sets the fatal reporter for contract violations.
func WithReporter(r *fatal.Reporter) Option {
	return func(w *Wheel) {
		w.rep = r
	}
}

// New creates an empty Wheel.
func New(opts ...Option) *Wheel {
	w := &Wheel{nextID: 1}
	for _, opt := range opts {
		opt(w)
	}
	if w.log == nil {
		w.log = logging.Default()
	}
	w.log = w.log.WithComponent("timerwheel")
	if w.rep == nil {
		w.rep = fatal.Default()
	}
	return w
}

// NewTimer schedules a task and returns its ID.
//
// The first firing is at now + startOffset + length. repeatCount 0 makes a
// one-shot, RepeatForever repeats until deleted, and a positive count fires
// that many times total.
func (w *Wheel) NewTimer(now time.Time, length, startOffset time.Duration, repeatCount int, task runnable.Runnable) TimerID {
	if task == nil {
		w.rep.Fatalf("NewTimer: nil task")
	}
	if repeatCount < RepeatForever {
		w.rep.Fatalf("NewTimer: invalid repeat count %d", repeatCount)
	}
	remaining := repeatCount
	if repeatCount == 0 {
		remaining = 1
	}
	t := &Timer{
		id:        w.nextID,
		created:   now,
		expire:    now.Add(startOffset).Add(length),
		length:    length,
		remaining: remaining,
		seq:       w.seq,
		task:      task,
	}
	w.nextID++
	w.seq++
	w.insert(t)
	return t.id
}

// GetTimer returns the timer with the given ID, or nil if it no longer
// exists.
func (w *Wheel) GetTimer(id TimerID) *Timer {
	for _, t := range w.timers {
		if t.id == id {
			return t
		}
	}
	return nil
}

// DeleteTimer removes the timer with the given ID. Deleting an unknown
// timer is a programming error and fatal.
func (w *Wheel) DeleteTimer(id TimerID) {
	for i, t := range w.timers {
		if t.id == id {
			w.timers = append(w.timers[:i], w.timers[i+1:]...)
			return
		}
	}
	w.rep.Fatalf("DeleteTimer: no timer with id %d", id)
}

// ActiveTimerCount returns the number of scheduled timers.
func (w *Wheel) ActiveTimerCount() int {
	return len(w.timers)
}

// TimeToNextExpire returns the delay until the earliest next-fire time, or
// zero if a timer is already due. Only meaningful when ActiveTimerCount is
// nonzero.
func (w *Wheel) TimeToNextExpire(now time.Time) time.Duration {
	if len(w.timers) == 0 {
		return 0
	}
	d := w.timers[0].expire.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Run fires every timer due at now, in ascending next-fire order with
// insertion-order tiebreak.
//
// Repeating timers advance by their interval from the scheduled fire time,
// not from now, so lateness in one cycle does not accumulate across
// repeats. A timer rescheduled into the past fires again on the next Run
// call rather than spinning within this one.
//
// A panicking task is recovered and logged; later due timers still fire.
func (w *Wheel) Run(now time.Time) {
	var due []*Timer
	for len(w.timers) > 0 && !w.timers[0].expire.After(now) {
		t := w.timers[0]
		w.timers = w.timers[1:]
		due = append(due, t)
	}

	for _, t := range due {
		w.fire(t)

		if t.remaining != RepeatForever {
			t.remaining--
			if t.remaining <= 0 {
				// Final firing; timer is discarded.
				continue
			}
		}
		t.expire = t.expire.Add(t.length)
		w.insert(t)
	}
}

// fire runs a timer task with panic isolation.
func (w *Wheel) fire(t *Timer) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("timer %d task panicked: %v (label %s)", t.id, r, runnable.Label(t.task))
		}
	}()
	t.task.Run()
}

// insert places t into the sorted position for (expire, seq).
func (w *Wheel) insert(t *Timer) {
	i := sort.Search(len(w.timers), func(i int) bool {
		o := w.timers[i]
		if !o.expire.Equal(t.expire) {
			return o.expire.After(t.expire)
		}
		return o.seq > t.seq
	})
	w.timers = append(w.timers, nil)
	copy(w.timers[i+1:], w.timers[i:])
	w.timers[i] = t
}
