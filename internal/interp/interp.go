// Package interp provides the interpreter-lock token and its binding to an
// embedded Lua interpreter.
//
// The token is the one shared mutable resource in the core with an explicit
// discipline: at most one thread holds it at any instant, the opted-in loop
// holds it by default while running its cycle, and it is released precisely
// during that loop's blocking wait and nowhere else. gopher-lua's LState is
// not goroutine-safe, so all interpreter access goes through the token.
package interp

import (
	"sync"
	"sync/atomic"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/goid"
	"github.com/dshills/runloop/internal/logging"
)

// DefaultAcquireWarn is the acquire-duration threshold above which a warning
// is logged: one frame at 120Hz. An interactive loop stalling longer than a
// frame on reacquire is worth surfacing.
const DefaultAcquireWarn = time.Second / 120

// Token is a mutual-exclusion permit held by at most one thread at a time.
type Token struct {
	mu     sync.Mutex
	holder atomic.Uint64 // goroutine ID of the holder, 0 when free

	// owned is set once when an event loop claims the token as its default
	// holder.
	owned atomic.Bool

	acquireWarn time.Duration
	log         *logging.Logger
	rep         *fatal.Reporter
}

// TokenOption configures a Token.
type TokenOption func(*Token)

// WithLogger sets the logger for acquire-latency warnings.
func WithLogger(l *logging.Logger) TokenOption {
	return func(t *Token) {
		t.log = l
	}
}

// WithReporter sets the fatal reporter for contract violations.
func WithReporter(r *fatal.Reporter) TokenOption {
	return func(t *Token) {
		t.rep = r
	}
}

// WithAcquireWarn overrides the acquire-duration warning threshold.
// Zero disables the warning.
func WithAcquireWarn(d time.Duration) TokenOption {
	return func(t *Token) {
		t.acquireWarn = d
	}
}

// NewToken creates an unheld Token.
func NewToken(opts ...TokenOption) *Token {
	t := &Token{acquireWarn: DefaultAcquireWarn}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logging.Default()
	}
	t.log = t.log.WithComponent("interp")
	if t.rep == nil {
		t.rep = fatal.Default()
	}
	return t
}

// ClaimOwnership marks the token as the default holding of one event loop.
// At most one loop may ever claim a token; a second claim is a programming
// error and fatal.
func (t *Token) ClaimOwnership() {
	if t.owned.Swap(true) {
		t.rep.Fatalf("interpreter lock already claimed by another event loop")
	}
}

// Acquire blocks until the token is held by the calling thread.
func (t *Token) Acquire() {
	start := time.Now()
	t.mu.Lock()
	t.holder.Store(goid.Get())

	if t.acquireWarn > 0 {
		if d := time.Since(start); d > t.acquireWarn {
			t.log.Info("interpreter lock acquire took %v", d)
		}
	}
}

// Release releases the token. Releasing a token the calling thread does not
// hold is a programming error and fatal.
func (t *Token) Release() {
	if t.holder.Load() != goid.Get() {
		t.rep.Fatalf("interpreter lock released by non-holding thread")
	}
	t.holder.Store(0)
	t.mu.Unlock()
}

// HeldByCurrentThread reports whether the calling thread holds the token.
func (t *Token) HeldByCurrentThread() bool {
	return t.holder.Load() == goid.Get()
}

// LuaOwner pairs a Token with the Lua interpreter state it protects.
type LuaOwner struct {
	tok   *Token
	state *lua.LState
	rep   *fatal.Reporter

	closeOnce sync.Once
}

// NewLuaOwner creates a fresh Lua state guarded by tok.
func NewLuaOwner(tok *Token, rep *fatal.Reporter) *LuaOwner {
	if rep == nil {
		rep = fatal.Default()
	}
	return &LuaOwner{
		tok:   tok,
		state: lua.NewState(),
		rep:   rep,
	}
}

// Token returns the guarding token.
func (o *LuaOwner) Token() *Token { return o.tok }

// Do runs fn against the interpreter state. Calling Do without holding the
// token is a programming error and fatal: the state is single-threaded and
// only the token holder may touch it.
func (o *LuaOwner) Do(fn func(L *lua.LState) error) error {
	if !o.tok.HeldByCurrentThread() {
		o.rep.Fatalf("lua state accessed without holding the interpreter lock")
	}
	return fn(o.state)
}

// DoString compiles and runs a chunk of Lua source under the token.
func (o *LuaOwner) DoString(src string) error {
	return o.Do(func(L *lua.LState) error {
		return L.DoString(src)
	})
}

// Close shuts the interpreter state down. Must be called with the token
// held, from the owning loop's thread, after the loop has finished.
func (o *LuaOwner) Close() {
	if !o.tok.HeldByCurrentThread() {
		o.rep.Fatalf("lua state closed without holding the interpreter lock")
	}
	o.closeOnce.Do(func() {
		o.state.Close()
	})
}
