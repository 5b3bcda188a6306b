package runloop

import (
	"strings"
	"time"

	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/goid"
	"github.com/dshills/runloop/internal/logging"
)

// DefaultPauseBudget bounds how long WaitForPause polls before giving up
// with a warning. The typical caller is an "about to be suspended by the
// OS" handler that has to return within a couple of seconds.
const DefaultPauseBudget = 2 * time.Second

// defaultPausePoll is the WaitForPause polling interval.
const defaultPausePoll = 10 * time.Millisecond

// Registry is the process-wide pause coordinator: a set of non-owning
// references to pausable loops plus the threads-paused flag. It is
// constructed once, on the thread designated as coordinator, and may only
// be used from that thread; loop paused flags are the sole cross-thread
// reads it performs.
type Registry struct {
	coordinator uint64
	loops       []*EventLoop

	threadsPaused bool

	pollInterval time.Duration
	log          *logging.Logger
	rep          *fatal.Reporter
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = l
	}
}

// WithRegistryReporter sets the fatal reporter for coordinator-thread
// contract violations.
func WithRegistryReporter(rep *fatal.Reporter) RegistryOption {
	return func(r *Registry) {
		r.rep = rep
	}
}

// WithPausePollInterval overrides the WaitForPause polling interval.
// Intended for tests.
func WithPausePollInterval(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.pollInterval = d
	}
}

// NewRegistry creates the pause coordinator, recording the calling thread
// as the designated coordinator.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		coordinator:  goid.Get(),
		pollInterval: defaultPausePoll,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Default()
	}
	r.log = r.log.WithComponent("registry")
	if r.rep == nil {
		r.rep = fatal.Default()
	}
	return r
}

// Register adds a loop to the pausable set. The registry does not own the
// loop's lifetime. Coordinator thread only.
func (r *Registry) Register(l *EventLoop) {
	r.assertCoordinator("Register")
	for _, existing := range r.loops {
		if existing == l {
			return
		}
	}
	r.loops = append(r.loops, l)
}

// Deregister removes a loop from the pausable set. Coordinator thread only.
func (r *Registry) Deregister(l *EventLoop) {
	r.assertCoordinator("Deregister")
	for i, existing := range r.loops {
		if existing == l {
			r.loops = append(r.loops[:i], r.loops[i+1:]...)
			return
		}
	}
}

// SetEventLoopsPaused broadcasts a Pause or Resume message to every
// registered loop. It does not wait for the loops to comply; poll with
// StillPausingLoops or WaitForPause for that. Coordinator thread only.
func (r *Registry) SetEventLoopsPaused(paused bool) {
	r.assertCoordinator("SetEventLoopsPaused")
	r.threadsPaused = paused
	for _, l := range r.loops {
		l.PushSetPaused(paused)
	}
}

// AreEventLoopsPaused reports whether a pause broadcast is in effect.
// Coordinator thread only.
func (r *Registry) AreEventLoopsPaused() bool {
	r.assertCoordinator("AreEventLoopsPaused")
	return r.threadsPaused
}

// StillPausingLoops returns the registered loops that have not yet applied
// the Pause message. Only meaningful while a pause is in effect; otherwise
// it returns nil. Coordinator thread only.
func (r *Registry) StillPausingLoops() []*EventLoop {
	r.assertCoordinator("StillPausingLoops")
	if !r.threadsPaused {
		return nil
	}
	var laggards []*EventLoop
	for _, l := range r.loops {
		if !l.Paused() {
			laggards = append(laggards, l)
		}
	}
	return laggards
}

// WaitForPause polls until every registered loop has paused or the budget
// elapses. A budget of zero or less uses DefaultPauseBudget. On timeout it
// logs a loud warning naming the loops still not paused and returns false;
// the condition is not fatal, since the OS may suspend the process
// regardless. Coordinator thread only.
func (r *Registry) WaitForPause(budget time.Duration) bool {
	r.assertCoordinator("WaitForPause")
	if budget <= 0 {
		budget = DefaultPauseBudget
	}
	deadline := time.Now().Add(budget)

	for {
		laggards := r.StillPausingLoops()
		if len(laggards) == 0 {
			return true
		}
		if time.Now().After(deadline) {
			names := make([]string, len(laggards))
			for i, l := range laggards {
				names[i] = l.ID().String()
			}
			r.log.Warn("loops still not paused after %v: %s", budget, strings.Join(names, ", "))
			return false
		}
		time.Sleep(r.pollInterval)
	}
}

// assertCoordinator reports a fatal contract violation when op is invoked
// off the coordinating thread.
func (r *Registry) assertCoordinator(op string) {
	if goid.Get() != r.coordinator {
		r.rep.Fatalf("%s called from thread %q; registry operations are coordinator-thread only",
			op, CurrentThreadName())
	}
}
