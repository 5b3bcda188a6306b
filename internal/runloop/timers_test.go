package runloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/dshills/runloop/internal/runnable"
	"github.com/dshills/runloop/internal/timerwheel"
)

func TestRepeatingTimerFiresOnLoopThread(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	var ticks atomic.Int64
	var id timerwheel.TimerID
	l.PushRunnableSynchronous(runnable.Func(func() {
		id = l.NewTimer(10*time.Millisecond, true, runnable.Func(func() {
			if !l.ThreadIsCurrent() {
				t.Error("timer task ran off the owning thread")
			}
			ticks.Add(1)
		}))
	}))

	waitUntil(t, func() bool { return ticks.Load() >= 3 })

	l.PushRunnableSynchronous(runnable.Func(func() {
		if got := l.ActiveTimerCount(); got != 1 {
			t.Errorf("ActiveTimerCount = %d, want 1", got)
		}
		if l.GetTimer(id) == nil {
			t.Error("GetTimer lost the repeating timer")
		}
		l.DeleteTimer(id)
	}))

	after := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	if got := ticks.Load(); got != after {
		t.Errorf("deleted timer still fired: %d -> %d", after, got)
	}
}

func TestCountedTimerStopsAfterItsFirings(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	var ticks atomic.Int64
	l.PushRunnableSynchronous(runnable.Func(func() {
		l.ScheduleTimer(10*time.Millisecond, 0, 2, runnable.Func(func() { ticks.Add(1) }))
	}))

	waitUntil(t, func() bool { return ticks.Load() == 2 })
	time.Sleep(50 * time.Millisecond)

	if got := ticks.Load(); got != 2 {
		t.Errorf("counted timer fired %d times, want 2", got)
	}
	l.PushRunnableSynchronous(runnable.Func(func() {
		if got := l.ActiveTimerCount(); got != 0 {
			t.Errorf("ActiveTimerCount = %d after final firing, want 0", got)
		}
	}))
}

func TestOneShotTimerOnWrappedLoop(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	l := New(Main, WrapCurrentThread, append(testLoopOptions(), WithClock(clock))...)

	fired := 0
	l.NewTimer(100*time.Millisecond, false, runnable.Func(func() { fired++ }))

	l.RunSingleCycle()
	if fired != 0 {
		t.Fatal("timer fired before its expire time")
	}

	now = now.Add(100 * time.Millisecond)
	l.RunSingleCycle()
	if fired != 1 {
		t.Errorf("fired = %d at expire time, want 1", fired)
	}
	if got := l.ActiveTimerCount(); got != 0 {
		t.Errorf("ActiveTimerCount = %d after one-shot, want 0", got)
	}
}

func TestTimersSuppressedWhilePaused(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	var ticks atomic.Int64
	l.PushRunnableSynchronous(runnable.Func(func() {
		l.NewTimer(5*time.Millisecond, true, runnable.Func(func() { ticks.Add(1) }))
	}))
	waitUntil(t, func() bool { return ticks.Load() >= 1 })

	l.PushSetPaused(true)
	waitUntil(t, l.Paused)

	before := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	if got := ticks.Load(); got != before {
		t.Errorf("timer fired while paused: %d -> %d", before, got)
	}

	l.PushSetPaused(false)
	waitUntil(t, func() bool { return ticks.Load() > before })
}
