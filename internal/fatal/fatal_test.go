package fatal

import (
	"strings"
	"testing"

	"github.com/dshills/runloop/internal/logging"
)

func TestFatalfPanicsOnDevBuild(t *testing.T) {
	var hooked string
	rep := NewReporter(
		WithLogger(logging.Null),
		WithHook(func(msg string) { hooked = msg }),
	)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Fatalf on a dev build must panic")
		}
		if msg, ok := r.(string); !ok || !strings.Contains(msg, "id 7") {
			t.Errorf("panic value = %v, want formatted message", r)
		}
		if !strings.Contains(hooked, "id 7") {
			t.Errorf("hook message = %q, want formatted message", hooked)
		}
	}()
	rep.Fatalf("no timer with id %d", 7)
}

func TestFatalfExitsOnTrustedBuild(t *testing.T) {
	exitCode := -1
	rep := NewReporter(
		WithLogger(logging.Null),
		WithTrustedBuild(true),
		WithExitFunc(func(code int) { exitCode = code }),
	)

	rep.Fatalf("backlog overflow")

	if exitCode != 1 {
		t.Errorf("exit code = %d, want 1", exitCode)
	}
}

func TestHandleThreadPanicRepanicsOriginalValue(t *testing.T) {
	rep := NewReporter(WithLogger(logging.Null))

	type marker struct{ n int }
	original := marker{n: 9}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("HandleThreadPanic on a dev build must re-panic")
		}
		if got, ok := r.(marker); !ok || got != original {
			t.Errorf("re-raised value = %v, want the original panic value", r)
		}
	}()
	rep.HandleThreadPanic("logic", original)
}

func TestHandleThreadPanicExitsOnTrustedBuild(t *testing.T) {
	exitCode := -1
	var hooked string
	rep := NewReporter(
		WithLogger(logging.Null),
		WithTrustedBuild(true),
		WithExitFunc(func(code int) { exitCode = code }),
		WithHook(func(msg string) { hooked = msg }),
	)

	rep.HandleThreadPanic("audio", "boom")

	if exitCode != 1 {
		t.Errorf("exit code = %d, want 1", exitCode)
	}
	if !strings.Contains(hooked, "audio") || !strings.Contains(hooked, "boom") {
		t.Errorf("report = %q, want thread name and panic value", hooked)
	}
}

func TestHooksRunInRegistrationOrder(t *testing.T) {
	var order []int
	rep := NewReporter(
		WithLogger(logging.Null),
		WithTrustedBuild(true),
		WithExitFunc(func(int) {}),
		WithHook(func(string) { order = append(order, 1) }),
		WithHook(func(string) { order = append(order, 2) }),
	)

	rep.Fatalf("x")

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("hook order = %v, want [1 2]", order)
	}
}
