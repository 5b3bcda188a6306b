package runloop

import (
	"sync"

	"github.com/dshills/runloop/internal/goid"
)

// threadNames maps goroutine IDs to loop-internal thread names so
// diagnostics can name the thread they came from.
var threadNames struct {
	mu sync.Mutex
	m  map[uint64]string
}

func registerCurrentThreadName(name string) {
	threadNames.mu.Lock()
	defer threadNames.mu.Unlock()
	if threadNames.m == nil {
		threadNames.m = make(map[uint64]string)
	}
	threadNames.m[goid.Get()] = name
}

func clearCurrentThreadName() {
	threadNames.mu.Lock()
	defer threadNames.mu.Unlock()
	delete(threadNames.m, goid.Get())
}

// CurrentThreadName returns the registered name of the calling thread, or
// "unknown" when the caller is not a loop thread.
func CurrentThreadName() string {
	threadNames.mu.Lock()
	defer threadNames.mu.Unlock()
	if name, ok := threadNames.m[goid.Get()]; ok {
		return name
	}
	return "unknown"
}
