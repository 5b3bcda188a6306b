// Package runnable defines the deferred unit of work executed by event
// loops. A Runnable transfers ownership to whichever queue holds it and is
// executed exactly once by its destination loop.
package runnable

import (
	"fmt"

	"github.com/google/uuid"
)

// Runnable is a single deferred unit of work.
type Runnable interface {
	Run()
}

// Func adapts a plain function to the Runnable interface.
type Func func()

// Run executes the function.
func (f Func) Run() { f() }

// Labeled is implemented by runnables that carry a human-readable label.
// Labels feed queue-backlog diagnostics, so submitters of high-volume work
// should implement it (or use NewLabeled) rather than rely on the type-name
// fallback.
type Labeled interface {
	Runnable
	RunnableLabel() string
}

// Label returns the diagnostic label for a runnable: its RunnableLabel if it
// implements Labeled, else its Go type name.
func Label(r Runnable) string {
	if lr, ok := r.(Labeled); ok {
		return lr.RunnableLabel()
	}
	return fmt.Sprintf("%T", r)
}

// labeledFunc is a function runnable with an explicit label and a unique
// submission ID for tracing.
type labeledFunc struct {
	fn    func()
	label string
	id    uuid.UUID
}

// NewLabeled wraps fn as a Runnable carrying the given diagnostic label and
// a freshly generated submission ID.
func NewLabeled(label string, fn func()) Labeled {
	return &labeledFunc{
		fn:    fn,
		label: label,
		id:    uuid.New(),
	}
}

// Run executes the wrapped function.
func (l *labeledFunc) Run() { l.fn() }

// RunnableLabel returns the label supplied at construction.
func (l *labeledFunc) RunnableLabel() string { return l.label }

// ID returns the submission ID assigned at construction.
func (l *labeledFunc) ID() uuid.UUID { return l.id }

// Identified is implemented by runnables that carry a submission ID.
type Identified interface {
	ID() uuid.UUID
}
