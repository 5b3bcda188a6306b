package runloop

import (
	"sync"
	"testing"
	"time"

	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/logging"
	"github.com/dshills/runloop/internal/runnable"
)

func testReporter() *fatal.Reporter {
	return fatal.NewReporter(fatal.WithLogger(logging.Null))
}

func testLoopOptions() []Option {
	return []Option{
		WithLogger(logging.Null),
		WithReporter(testReporter()),
	}
}

// spawnTestLoop creates a spawned loop that is shut down and joined when the
// test ends.
func spawnTestLoop(t *testing.T, id ID) *EventLoop {
	t.Helper()
	l := New(id, SpawnThread, testLoopOptions()...)
	t.Cleanup(func() {
		l.PushShutdown()
		l.Join()
	})
	return l
}

// waitUntil polls cond until it holds or the deadline passes.
func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSpawnedLoopRunsWorkOnItsOwnThread(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	var onLoopThread bool
	var threadName string
	l.PushRunnableSynchronous(runnable.Func(func() {
		onLoopThread = l.ThreadIsCurrent()
		threadName = CurrentThreadName()
	}))

	if !onLoopThread {
		t.Error("runnable did not execute on the loop's own thread")
	}
	if threadName != "logic" {
		t.Errorf("thread name = %q, want %q", threadName, "logic")
	}
	if l.ThreadIsCurrent() {
		t.Error("ThreadIsCurrent true on the submitting thread")
	}
}

func TestCurrentThreadNameUnknownOffLoop(t *testing.T) {
	name := make(chan string, 1)
	go func() { name <- CurrentThreadName() }()
	if got := <-name; got != "unknown" {
		t.Errorf("CurrentThreadName on a plain goroutine = %q, want %q", got, "unknown")
	}
}

func TestSynchronousSubmitBlocksUntilExecuted(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	flag := 0
	start := time.Now()
	l.PushRunnableSynchronous(runnable.NewLabeled("set-flag", func() { flag = 42 }))
	elapsed := time.Since(start)

	if flag != 42 {
		t.Errorf("flag = %d after synchronous submit returned, want 42", flag)
	}
	if elapsed >= 100*time.Millisecond {
		t.Errorf("synchronous submit to an idle loop took %v, want well under 100ms", elapsed)
	}
}

func TestSynchronousSubmitFromOwnThreadFatal(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	recovered := make(chan any, 1)
	l.PushRunnableSynchronous(runnable.Func(func() {
		defer func() { recovered <- recover() }()
		l.PushRunnableSynchronous(runnable.Func(func() {}))
	}))

	if r := <-recovered; r == nil {
		t.Fatal("synchronous submit from the target loop's thread must be fatal")
	}
}

func TestRunnablesExecuteInSubmissionOrder(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	var got []int
	const n = 50
	for i := 0; i < n; i++ {
		i := i
		l.PushRunnable(runnable.Func(func() { got = append(got, i) }))
	}
	l.PushRunnableSynchronous(runnable.Func(func() {}))

	if len(got) != n {
		t.Fatalf("executed %d runnables, want %d", len(got), n)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order broken at index %d: got %d", i, v)
		}
	}
}

func TestNoSubmissionLostUnderConcurrency(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	const producers = 4
	const perProducer = 250

	count := 0
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				l.PushRunnable(runnable.Func(func() { count++ }))
			}
		}()
	}
	wg.Wait()
	l.PushRunnableSynchronous(runnable.Func(func() {}))

	if count != producers*perProducer {
		t.Errorf("executed %d runnables, want %d", count, producers*perProducer)
	}
}

func TestShutdownDropsRestOfBatch(t *testing.T) {
	l := New(Logic, SpawnThread, testLoopOptions()...)

	gate := make(chan struct{})
	started := make(chan struct{})
	l.PushRunnable(runnable.Func(func() {
		close(started)
		<-gate
	}))
	<-started

	// The loop is busy, so these three land in one drained batch.
	ranBefore := false
	ranAfter := false
	l.PushRunnable(runnable.Func(func() { ranBefore = true }))
	l.PushShutdown()
	l.PushRunnable(runnable.Func(func() { ranAfter = true }))

	close(gate)
	l.Join()

	if !ranBefore {
		t.Error("runnable submitted before shutdown did not run")
	}
	if ranAfter {
		t.Error("runnable submitted after shutdown ran anyway")
	}
}

func TestCheckPushSafetyFlipsAtSoftLimit(t *testing.T) {
	l := New(Logic, SpawnThread,
		WithLogger(logging.Null),
		WithReporter(testReporter()),
		WithQueueLimits(5, 1000),
	)
	defer func() {
		l.PushShutdown()
		l.Join()
	}()

	gate := make(chan struct{})
	started := make(chan struct{})
	l.PushRunnable(runnable.Func(func() {
		close(started)
		<-gate
	}))
	<-started

	if !l.CheckPushSafety() {
		t.Error("near-empty queue should be safe")
	}
	for i := 0; i < 5; i++ {
		l.PushRunnable(runnable.Func(func() {}))
	}
	if l.CheckPushSafety() {
		t.Error("queue at soft limit should report unsafe")
	}
	close(gate)
}

func TestSpawningMainLoopFatal(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic spawning the main-role loop")
		}
	}()
	New(Main, SpawnThread, testLoopOptions()...)
}

func TestOwningThreadOnlyAccessorsFatalOffThread(t *testing.T) {
	l := spawnTestLoop(t, Logic)

	tests := []struct {
		name string
		call func()
	}{
		{"Done", func() { l.Done() }},
		{"LastPauseTime", func() { l.LastPauseTime() }},
		{"MessagesSincePaused", func() { l.MessagesSincePaused() }},
		{"NewTimer", func() { l.NewTimer(time.Millisecond, false, runnable.Func(func() {})) }},
		{"RunToCompletion", func() { l.RunToCompletion() }},
		{"AddPauseCallback", func() { l.AddPauseCallback(runnable.Func(func() {})) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Errorf("%s off the owning thread must be fatal", tt.name)
				}
			}()
			tt.call()
		})
	}
}

func TestJoinOnWrappedLoopFatal(t *testing.T) {
	l := New(Main, WrapCurrentThread, testLoopOptions()...)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic joining a wrapped loop")
		}
	}()
	l.Join()
}
