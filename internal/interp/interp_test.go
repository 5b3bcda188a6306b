package interp

import (
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/runloop/internal/fatal"
	"github.com/dshills/runloop/internal/logging"
)

func testToken() *Token {
	return NewToken(
		WithLogger(logging.Null),
		WithReporter(fatal.NewReporter(fatal.WithLogger(logging.Null))),
	)
}

func TestTokenHandoff(t *testing.T) {
	tok := testToken()
	tok.Acquire()
	if !tok.HeldByCurrentThread() {
		t.Fatal("HeldByCurrentThread false right after Acquire")
	}

	acquired := make(chan struct{})
	released := make(chan struct{})
	go func() {
		tok.Acquire()
		close(acquired)
		tok.Release()
		close(released)
	}()

	select {
	case <-acquired:
		t.Fatal("second thread acquired a held token")
	case <-time.After(30 * time.Millisecond):
	}

	tok.Release()
	if tok.HeldByCurrentThread() {
		t.Error("HeldByCurrentThread true after Release")
	}

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("token was not handed off to the waiting thread")
	}
}

func TestHeldByCurrentThreadIsPerThread(t *testing.T) {
	tok := testToken()
	tok.Acquire()
	defer tok.Release()

	other := make(chan bool, 1)
	go func() { other <- tok.HeldByCurrentThread() }()
	if <-other {
		t.Error("a non-holding thread claims to hold the token")
	}
}

func TestReleaseByNonHolderFatal(t *testing.T) {
	tok := testToken()

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic releasing an unheld token")
		}
	}()
	tok.Release()
}

func TestLuaAccessRequiresToken(t *testing.T) {
	tok := testToken()
	vm := NewLuaOwner(tok, fatal.NewReporter(fatal.WithLogger(logging.Null)))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic touching the lua state without the token")
		}
	}()
	_ = vm.DoString(`x = 1`)
}

func TestLuaOwnerRunsChunksUnderToken(t *testing.T) {
	tok := testToken()
	tok.Acquire()
	defer tok.Release()

	vm := NewLuaOwner(tok, fatal.NewReporter(fatal.WithLogger(logging.Null)))
	defer vm.Close()

	if vm.Token() != tok {
		t.Fatal("Token() does not return the guarding token")
	}

	if err := vm.DoString(`answer = 21 * 2`); err != nil {
		t.Fatalf("DoString: %v", err)
	}

	var answer float64
	err := vm.Do(func(L *lua.LState) error {
		answer = float64(lua.LVAsNumber(L.GetGlobal("answer")))
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if answer != 42 {
		t.Errorf("answer = %v, want 42", answer)
	}

	if err := vm.DoString(`this is not lua`); err == nil {
		t.Error("invalid chunk did not return an error")
	}

	// Close is idempotent.
	vm.Close()
}
