package runloop

import (
	"github.com/dshills/runloop/internal/msgqueue"
	"github.com/dshills/runloop/internal/runnable"
)

// PushRunnable submits a task to the loop, fire-and-forget. From the loop's
// own thread it lands directly on the local pending list; from any other
// thread it is wrapped in a message and pushed to the loop's queue, waking
// the loop. FIFO order holds per producer into one loop's queue; there is
// no cross-loop ordering guarantee.
func (l *EventLoop) PushRunnable(task runnable.Runnable) {
	if l.ThreadIsCurrent() {
		l.pending.Add(pendingEntry{task: task})
		return
	}
	l.queue.Push(msgqueue.Message{Kind: msgqueue.KindRunnable, Runnable: task})
}

// PushRunnableSynchronous submits a task and blocks until the loop has
// executed it. Calling it from the target loop's own thread would deadlock
// and is a fatal programming error.
func (l *EventLoop) PushRunnableSynchronous(task runnable.Runnable) {
	if l.ThreadIsCurrent() {
		l.rep.Fatalf("PushRunnableSynchronous called from target loop %q thread; would deadlock", l.id)
	}

	if idr, ok := task.(runnable.Identified); ok {
		l.log.Debug("synchronous submit %s (%s)", idr.ID(), runnable.Label(task))
	}

	completion := msgqueue.NewCompletion()
	l.queue.Push(msgqueue.Message{
		Kind:       msgqueue.KindRunnable,
		Runnable:   task,
		Completion: completion,
	})
	completion.Wait()
}

// PushShutdown asks the loop to terminate after the current batch.
// Safe from any thread.
func (l *EventLoop) PushShutdown() {
	l.queue.Push(msgqueue.Message{Kind: msgqueue.KindShutdown})
}

// PushSetPaused sends a Pause or Resume control message. Normally invoked
// through a Registry broadcast from the coordinating thread.
func (l *EventLoop) PushSetPaused(paused bool) {
	kind := msgqueue.KindResume
	if paused {
		kind = msgqueue.KindPause
	}
	l.queue.Push(msgqueue.Message{Kind: kind})
}

// CheckPushSafety is the advisory backpressure check: false once the
// relevant backlog (local pending list on the loop's own thread, message
// queue otherwise) has reached the soft threshold. Latency-insensitive
// producers use it to drop work instead of enqueueing unboundedly.
func (l *EventLoop) CheckPushSafety() bool {
	if l.ThreadIsCurrent() {
		return l.pending.Length() < l.softLimit
	}
	return l.queue.CheckPushSafety()
}
