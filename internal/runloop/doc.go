// Package runloop implements the per-thread event loops that carry an
// interactive real-time application: a fixed, named set of long-lived run
// cycles, each pinned to one OS thread for its lifetime.
//
// Each EventLoop owns a cross-thread message queue, a timer wheel, and a
// local pending-runnable list. External code submits work with PushRunnable
// (fire-and-forget) or PushRunnableSynchronous (blocks until the task has
// executed). All mutation of the timer wheel and the local runnable list
// happens on the loop's own thread; cross-thread submission always goes
// through the message queue.
//
// A Registry coordinates pausing the whole set from one designated thread,
// and a loop may opt in to holding the interpreter-lock token, releasing it
// only while blocked waiting for messages.
package runloop
