//go:build linux

package runloop

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setOSThreadName names the current OS thread so it shows up in tooling
// like top and in native crash reports. The kernel caps names at 15 bytes
// plus NUL.
func setOSThreadName(name string) {
	const maxLen = 15
	if len(name) > maxLen {
		name = name[:maxLen]
	}
	buf := make([]byte, len(name)+1)
	copy(buf, name)
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
