//go:build !linux

package runloop

// setOSThreadName is a no-op on platforms without a thread-naming call
// wired up.
func setOSThreadName(string) {}
