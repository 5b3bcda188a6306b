package goid

import "testing"

func TestGetIsStableWithinGoroutine(t *testing.T) {
	a := Get()
	b := Get()
	if a == 0 {
		t.Fatal("Get returned 0")
	}
	if a != b {
		t.Errorf("Get changed within one goroutine: %d then %d", a, b)
	}
}

func TestGetDiffersAcrossGoroutines(t *testing.T) {
	mine := Get()
	other := make(chan uint64, 1)
	go func() { other <- Get() }()
	if got := <-other; got == mine {
		t.Errorf("two goroutines share ID %d", got)
	}
}
