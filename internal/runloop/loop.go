package runloop

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"

	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/goid"
	"github.com/dshills/runloop/internal/interp"
	"github.com/dshills/runloop/internal/logging"
	"github.com/dshills/runloop/internal/msgqueue"
	"github.com/dshills/runloop/internal/runnable"
	"github.com/dshills/runloop/internal/timerwheel"
)

// pendingEntry is a locally queued task, optionally paired with the
// completion signal of a synchronous submitter.
type pendingEntry struct {
	task       runnable.Runnable
	completion *msgqueue.Completion
}

// EventLoop is one long-lived, thread-pinned run cycle.
//
// Fields below the queue are loop-exclusive: they are touched only on the
// owning thread. The paused flag is additionally readable by the pause
// coordinator, hence atomic.
type EventLoop struct {
	id     ID
	source Source

	// gid is the owning goroutine's ID, recorded during bootstrap (spawned
	// loops) or construction (wrapped loops), never reassigned.
	gid atomic.Uint64

	queue  *msgqueue.Queue
	paused atomic.Bool

	// Loop-exclusive state.
	done                bool
	lastPauseTime       time.Time
	messagesSincePaused int
	timers              *timerwheel.Wheel
	pending             *queue.Queue
	pauseCallbacks      []runnable.Runnable
	resumeCallbacks     []runnable.Runnable
	interpTok           *interp.Token

	softLimit int
	clock     func() time.Time
	log       *logging.Logger
	rep       *fatal.Reporter

	// ready is closed by a spawned loop's thread once it has locked its OS
	// thread and recorded its identity; New blocks on it so the creator
	// never observes a half-bootstrapped loop.
	ready chan struct{}

	// stopped is closed when a spawned loop's thread function returns.
	stopped chan struct{}
}

// New creates the event loop for a role.
//
// With SpawnThread the call blocks until the new thread has bootstrapped:
// locked itself to an OS thread, recorded its identity, and set its thread
// names. With WrapCurrentThread the calling thread is adopted and the
// caller drives the loop with RunToCompletion or RunSingleCycle.
func New(id ID, source Source, opts ...Option) *EventLoop {
	cfg := defaultLoopConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &EventLoop{
		id:        id,
		source:    source,
		timers:    timerwheel.New(timerwheel.WithLogger(cfg.log), timerwheel.WithReporter(cfg.rep)),
		pending:   queue.New(),
		softLimit: cfg.softLimit,
		clock:     cfg.clock,
		log:       cfg.log.WithComponent("runloop").WithField("loop", id.String()),
		rep:       cfg.rep,
	}
	l.queue = msgqueue.New(id.String(),
		msgqueue.WithLimits(cfg.softLimit, cfg.hardLimit),
		msgqueue.WithLogger(cfg.log),
		msgqueue.WithReporter(cfg.rep),
	)

	switch source {
	case SpawnThread:
		if id == Main {
			l.rep.Fatalf("the main loop wraps the process main thread; it cannot be spawned")
		}
		l.ready = make(chan struct{})
		l.stopped = make(chan struct{})
		go l.threadMain()
		// Block until the thread is bootstrapped. The receive doubles as
		// the ready barrier: the new thread signals only after recording
		// its identity, and a channel receive cannot miss a close that
		// happens first, so the notify-before-wait race of a raw condvar
		// handshake cannot occur.
		<-l.ready
	case WrapCurrentThread:
		l.gid.Store(goid.Get())
		registerCurrentThreadName(id.String())
	default:
		l.rep.Fatalf("unknown thread source %d", source)
	}

	return l
}

// threadMain is the entry point of a spawned loop's thread.
func (l *EventLoop) threadMain() {
	// The goroutine stays locked for its whole life; when it returns the
	// OS thread is terminated rather than returned to the scheduler pool.
	runtime.LockOSThread()
	l.gid.Store(goid.Get())
	registerCurrentThreadName(l.id.String())
	setOSThreadName("runloop " + l.id.String())

	defer close(l.stopped)
	defer func() {
		if r := recover(); r != nil {
			l.rep.HandleThreadPanic(CurrentThreadName(), r)
		}
	}()

	close(l.ready)

	l.RunToCompletion()

	clearCurrentThreadName()
}

// Join blocks until a spawned loop's thread function has returned.
// Joining a wrapped loop is a programming error: the caller drives it.
func (l *EventLoop) Join() {
	if l.source != SpawnThread {
		l.rep.Fatalf("Join is only valid on a spawned loop; %q wraps an external thread", l.id)
	}
	<-l.stopped
}

// ID returns the loop's role.
func (l *EventLoop) ID() ID { return l.id }

// Source returns how the loop got its thread.
func (l *EventLoop) Source() Source { return l.source }

// ThreadIsCurrent reports whether the caller is on the loop's own thread.
func (l *EventLoop) ThreadIsCurrent() bool {
	g := l.gid.Load()
	return g != 0 && g == goid.Get()
}

// Paused reports whether the loop has applied a Pause message and not yet a
// Resume. Readable from any thread.
func (l *EventLoop) Paused() bool { return l.paused.Load() }

// Done reports whether the loop has applied a Shutdown. Owning thread only.
func (l *EventLoop) Done() bool {
	l.assertThreadIsCurrent("Done")
	return l.done
}

// LastPauseTime returns when the loop last applied a Pause message.
// Owning thread only.
func (l *EventLoop) LastPauseTime() time.Time {
	l.assertThreadIsCurrent("LastPauseTime")
	return l.lastPauseTime
}

// MessagesSincePaused returns how many runnable messages have arrived since
// the loop paused. Owning thread only.
func (l *EventLoop) MessagesSincePaused() int {
	l.assertThreadIsCurrent("MessagesSincePaused")
	return l.messagesSincePaused
}

// AddPauseCallback registers a callback run synchronously when a Pause
// message is applied, before the paused flag flips. Owning thread only.
func (l *EventLoop) AddPauseCallback(r runnable.Runnable) {
	l.assertThreadIsCurrent("AddPauseCallback")
	l.pauseCallbacks = append(l.pauseCallbacks, r)
}

// AddResumeCallback registers a callback run synchronously when a Resume
// message is applied, before the paused flag clears. Owning thread only.
func (l *EventLoop) AddResumeCallback(r runnable.Runnable) {
	l.assertThreadIsCurrent("AddResumeCallback")
	l.resumeCallbacks = append(l.resumeCallbacks, r)
}

// SetAcquiresInterpreterLock opts the loop in as the interpreter-lock
// holder and takes the token immediately. At most one loop may ever claim a
// given token; call it exactly once, from the loop's own thread.
func (l *EventLoop) SetAcquiresInterpreterLock(tok *interp.Token) {
	l.assertThreadIsCurrent("SetAcquiresInterpreterLock")
	if l.interpTok != nil {
		l.rep.Fatalf("SetAcquiresInterpreterLock called twice on loop %q", l.id)
	}
	tok.ClaimOwnership()
	l.interpTok = tok
	tok.Acquire()
}

// assertThreadIsCurrent reports a fatal contract violation when op is
// invoked off the owning thread.
func (l *EventLoop) assertThreadIsCurrent(op string) {
	if !l.ThreadIsCurrent() {
		l.rep.Fatalf("%s called from thread %q; loop %q operations are owning-thread only",
			op, CurrentThreadName(), l.id)
	}
}
