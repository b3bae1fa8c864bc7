//go:build !linux

package link

import (
	"fmt"
	"runtime"
	"time"
)

// Open is unavailable outside Linux: raw AF_PACKET sockets are a Linux
// syscall surface with no portable equivalent (see SPEC_FULL.md §4.2).
// Non-Linux hosts use link.NewPipe for development and tests.
func Open(iface string, timeout time.Duration) (Socket, error) {
	return nil, fmt.Errorf("link: raw link-layer sockets are only implemented on linux (GOOS=%s)", runtime.GOOS)
}
