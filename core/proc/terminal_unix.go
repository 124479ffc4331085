//go:build !windows

package proc

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

var _ TerminalController = (*processGroup)(nil)

// Foreground implements TerminalController.
//
// The caller is in a background process group until restore is called, so
// SIGTTOU is ignored in the meantime.
func (g *processGroup) Foreground(tty *os.File) (func() error, error) {
	g.mu.Lock()
	pgid := g.pgid
	live := !g.reaped
	g.mu.Unlock()

	if pgid == 0 || !live {
		return func() error { return nil }, nil
	}

	fd := int(tty.Fd())
	previous, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil {
		return nil, os.NewSyscallError("tcgetpgrp", err)
	}

	signal.Ignore(unix.SIGTTOU)
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgid); err != nil {
		signal.Reset(unix.SIGTTOU)
		return nil, os.NewSyscallError("tcsetpgrp", err)
	}

	// Anything that read the terminal before the hand off was stopped.
	g.signal(unix.SIGCONT)

	return func() error {
		defer signal.Reset(unix.SIGTTOU)
		if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, previous); err != nil {
			return os.NewSyscallError("tcsetpgrp", err)
		}
		return nil
	}, nil
}
