// Package fatal routes unrecoverable errors to a single exit-policy point.
//
// Two classes of callers use it: programming-contract violations (calling a
// loop-thread-only operation from the wrong thread, double pause, unknown
// timer deletion) and resource exhaustion past a hard limit. Both indicate a
// caller bug rather than a runtime condition to recover from.
//
// What happens after reporting is a deployment policy, not core logic: an
// official, unmodified ("trusted") build exits cleanly with a nonzero status
// to keep developer noise out of crash-reporting systems, while a dev build
// panics so native diagnostics surface.
package fatal

import (
	"fmt"
	"os"
	"sync"

	"github.com/dshills/runloop/internal/logging"
)

// Reporter reports fatal conditions and applies the configured exit policy.
type Reporter struct {
	mu           sync.Mutex
	log          *logging.Logger
	trustedBuild bool
	exit         func(code int)
	hooks        []func(msg string)
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithLogger sets the logger used for fatal reports.
func WithLogger(l *logging.Logger) Option {
	return func(r *Reporter) {
		r.log = l
	}
}

// WithTrustedBuild marks the running build as an official, unmodified
// release. Trusted builds exit cleanly instead of panicking.
func WithTrustedBuild(trusted bool) Option {
	return func(r *Reporter) {
		r.trustedBuild = trusted
	}
}

// WithExitFunc overrides the process-exit function. Intended for tests and
// for embedding hosts that must not call os.Exit directly.
func WithExitFunc(fn func(code int)) Option {
	return func(r *Reporter) {
		r.exit = fn
	}
}

// WithHook registers a callback invoked with the formatted message before
// the exit policy runs. Hooks must not block.
func WithHook(fn func(msg string)) Option {
	return func(r *Reporter) {
		r.hooks = append(r.hooks, fn)
	}
}

// NewReporter creates a Reporter with the given options.
func NewReporter(opts ...Option) *Reporter {
	r := &Reporter{
		log:  logging.Default(),
		exit: os.Exit,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fatalf reports a fatal condition and applies the exit policy. It does not
// return on trusted builds; on dev builds it panics with the message.
func (r *Reporter) Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.report(msg)
	if r.trusted() {
		r.exit(1)
		return
	}
	panic(msg)
}

// HandleThreadPanic is the thread-main boundary handler for a panic that
// escaped a loop's run cycle. On dev builds the original panic value is
// re-raised so stack traces and crash reports stay intact.
func (r *Reporter) HandleThreadPanic(threadName string, recovered any) {
	r.report(fmt.Sprintf("unhandled panic in %s thread: %v", threadName, recovered))
	if r.trusted() {
		r.exit(1)
		return
	}
	panic(recovered)
}

func (r *Reporter) trusted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.trustedBuild
}

func (r *Reporter) report(msg string) {
	r.mu.Lock()
	log := r.log
	hooks := r.hooks
	r.mu.Unlock()

	if log != nil {
		log.WithComponent("fatal").Error("%s", msg)
	}
	for _, hook := range hooks {
		hook(msg)
	}
}

// defaultReporter is the process-wide reporter instance.
var (
	defaultReporter     *Reporter
	defaultReporterOnce sync.Once
)

// Default returns the process-wide reporter, creating a dev-build (panic)
// reporter on first call if none was set.
func Default() *Reporter {
	defaultReporterOnce.Do(func() {
		if defaultReporter == nil {
			defaultReporter = NewReporter()
		}
	})
	return defaultReporter
}

// SetDefault sets the process-wide reporter.
// Should be called early in application startup.
func SetDefault(r *Reporter) {
	defaultReporter = r
}
