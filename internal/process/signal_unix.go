//go:build !windows

package process

import "syscall"

// Kill sends SIGKILL to pid. There is no graceful shutdown handshake.
func Kill(pid int) error {
	return syscall.Kill(pid, syscall.SIGKILL)
}
