// Package msgqueue implements the cross-thread message queue owned by each
// event loop.
//
// Producers on any thread Push control or runnable messages; the single
// owning thread Drains the whole backlog in one O(1) swap. The queue never
// blocks producers: growth past a soft threshold is logged once with a tally
// of message kinds, and growth past a hard threshold is fatal, since a
// producer outrunning the consumer indefinitely is a bug and silently
// continuing risks unbounded memory use.
package msgqueue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/logging"
	"github.com/dshills/runloop/internal/runnable"
)

// Default backlog thresholds.
const (
	// DefaultSoftLimit is the backlog length that triggers the one-time
	// diagnostic tally. CheckPushSafety reports false past this point.
	DefaultSoftLimit = 1000

	// DefaultHardLimit is the backlog length treated as fatal.
	DefaultHardLimit = 10000
)

// Kind identifies the variant of a Message.
type Kind uint8

const (
	// KindRunnable carries a deferred task for the owning loop.
	KindRunnable Kind = iota
	// KindShutdown asks the owning loop to terminate.
	KindShutdown
	// KindPause asks the owning loop to stop executing tasks and timers.
	KindPause
	// KindResume lifts a previous pause.
	KindResume
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRunnable:
		return "runnable"
	case KindShutdown:
		return "shutdown"
	case KindPause:
		return "pause"
	case KindResume:
		return "resume"
	default:
		return "unknown"
	}
}

// Completion signals a synchronous submitter that its runnable has executed.
// The signal fires exactly once; waiting after the signal returns
// immediately.
type Completion struct {
	once sync.Once
	done chan struct{}
}

// NewCompletion creates an unsignaled Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Signal marks the completion done and wakes all waiters.
func (c *Completion) Signal() {
	c.once.Do(func() { close(c.done) })
}

// Wait blocks until Signal has been called.
func (c *Completion) Wait() {
	<-c.done
}

// Done returns a channel closed when the completion has been signaled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Message is the envelope delivered across thread boundaries. It is created
// at submission time and consumed exactly once by the owning loop's drain.
type Message struct {
	// Kind selects the variant.
	Kind Kind

	// Runnable is the task payload for KindRunnable messages.
	Runnable runnable.Runnable

	// Completion, when non-nil on a KindRunnable message, is signaled by the
	// owning loop after the runnable has executed.
	Completion *Completion
}

// Queue is the mutex-guarded unbounded message queue.
type Queue struct {
	mu   sync.Mutex
	msgs []Message

	// wake carries at most one token; Push deposits it after appending so a
	// waiter blocked in Wait always observes the new message on its next
	// check. Stale tokens only cause a harmless re-check.
	wake chan struct{}

	softLimit  int
	hardLimit  int
	softWarned bool
	tallying   bool

	name string
	log  *logging.Logger
	rep  *fatal.Reporter
}

// Option configures a Queue.
type Option func(*Queue)

// WithLimits overrides the soft and hard backlog thresholds.
func WithLimits(soft, hard int) Option {
	return func(q *Queue) {
		q.softLimit = soft
		q.hardLimit = hard
	}
}

// WithLogger sets the logger for backlog diagnostics.
func WithLogger(l *logging.Logger) Option {
	return func(q *Queue) {
		q.log = l
	}
}

// WithReporter sets the fatal reporter used when the hard limit is crossed.
func WithReporter(r *fatal.Reporter) Option {
	return func(q *Queue) {
		q.rep = r
	}
}

// New creates a Queue. The name identifies the owning loop in diagnostics.
func New(name string, opts ...Option) *Queue {
	q := &Queue{
		wake:      make(chan struct{}, 1),
		softLimit: DefaultSoftLimit,
		hardLimit: DefaultHardLimit,
		name:      name,
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.log == nil {
		q.log = logging.Default()
	}
	q.log = q.log.WithComponent("msgqueue").WithField("loop", name)
	if q.rep == nil {
		q.rep = fatal.Default()
	}
	return q
}

// Push appends a message and wakes the owning thread. Safe from any thread.
func (q *Queue) Push(m Message) {
	// Log lines are collected under the lock and emitted after it is
	// released. Logging can block on the interpreter lock, and the lock
	// holder may itself be pushing to this queue; logging under the mutex
	// would deadlock that pairing.
	var entries []string
	var length int

	q.mu.Lock()
	q.msgs = append(q.msgs, m)
	length = len(q.msgs)

	if length > q.softLimit && !q.softWarned {
		q.softWarned = true
		entries = q.tallyLocked()
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}

	for _, e := range entries {
		q.log.Error("%s", e)
	}

	if length > q.hardLimit {
		q.rep.Fatalf("message backlog > %d on loop %q", q.hardLimit, q.name)
	}
}

// Drain atomically removes and returns the whole backlog. Callable only
// from the owning thread; the owning loop enforces that precondition.
func (q *Queue) Drain() []Message {
	q.mu.Lock()
	msgs := q.msgs
	q.msgs = nil
	q.mu.Unlock()
	return msgs
}

// Len returns the current backlog length.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs)
}

// CheckPushSafety reports whether the backlog is below the soft threshold.
// It is an advisory policy hook for latency-insensitive producers that can
// drop work instead of enqueueing unboundedly; nothing is enforced.
func (q *Queue) CheckPushSafety() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.msgs) < q.softLimit
}

// Wait blocks until at least one message is queued. A timeout greater than
// zero bounds the wait; zero or negative waits indefinitely. Returns true
// if messages are available, false if the timeout elapsed first.
//
// Stale wake tokens from already-drained pushes cause a re-check and sleep,
// never a false return.
func (q *Queue) Wait(timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		q.mu.Lock()
		n := len(q.msgs)
		q.mu.Unlock()
		if n > 0 {
			return true
		}

		if timeout <= 0 {
			<-q.wake
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-q.wake:
			if !timer.Stop() {
				<-timer.C
			}
		case <-timer.C:
			return false
		}
	}
}

// tallyLocked builds the backlog diagnostic: a count of queued messages
// grouped by kind, with runnable messages further grouped by label.
// Caller must hold q.mu.
func (q *Queue) tallyLocked() []string {
	if q.tallying {
		return nil
	}
	q.tallying = true
	defer func() { q.tallying = false }()

	tally := make(map[string]int)
	for _, m := range q.msgs {
		key := m.Kind.String()
		if m.Kind == KindRunnable && m.Runnable != nil {
			key += ": " + runnable.Label(m.Runnable)
		}
		tally[key]++
	}

	keys := make([]string, 0, len(tally))
	for k := range tally {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if tally[keys[i]] != tally[keys[j]] {
			return tally[keys[i]] > tally[keys[j]]
		}
		return keys[i] < keys[j]
	})

	entries := make([]string, 0, len(tally)+1)
	entries = append(entries, fmt.Sprintf("message backlog past soft threshold, tally (%d in list):", len(q.msgs)))
	for i, k := range keys {
		entries = append(entries, fmt.Sprintf("  #%d (%dx): %s", i+1, tally[k], k))
	}
	return entries
}
