//go:build unix && !linux

package scale

import (
	"syscall"
)

const (
	wakeFdCloexec  = 0
	wakeFdNonblock = 0
)

// createWakeFd creates a self-pipe for wake-up notifications on Unixes
// without eventfd. Returns the read end and the write end of the pipe.
// The initval and flags parameters exist for API compatibility with the
// Linux eventfd variant and are ignored.
func createWakeFd(initval uint, flags int) (int, int, error) {
	_ = initval
	_ = flags

	var fds [2]int
	if err := syscall.Pipe(fds[:]); err != nil {
		return 0, 0, err
	}

	cleanup := func() {
		syscall.Close(fds[0])
		syscall.Close(fds[1])
	}

	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])

	if err := syscall.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return 0, 0, err
	}
	if err := syscall.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return 0, 0, err
	}

	return fds[0], fds[1], nil
}
