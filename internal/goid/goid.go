// Package goid exposes the current goroutine's numeric ID.
//
// Loops in this codebase are pinned to a single goroutine (and via
// runtime.LockOSThread to a single OS thread) for their whole lifetime, so
// a goroutine ID comparison is how "is the caller on the owning thread"
// preconditions are enforced.
package goid

import "runtime"

// Get returns the current goroutine's ID by parsing the header line of a
// single-goroutine stack dump ("goroutine N [running]:").
func Get() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
