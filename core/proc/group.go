// Package proc controls the operating system processes of a single job as one
// unit.
//
// On POSIX systems a job is a process group: the first process spawned
// becomes the group leader and every later process joins it, interrupts are
// delivered as SIGINT and termination as SIGKILL to the whole group.
//
// On Windows a job is a Job Object created with kill-on-close semantics.
// Every process is created suspended and assigned to it before it runs, so
// termination reaches grandchildren the shell never sees. There's no way to
// deliver a console interrupt to a detached process group, so Interrupt
// terminates the job with ExitInterrupted.
package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// ExitInterrupted is the status reported for interrupted jobs on every
// platform.
const ExitInterrupted = 130

var (
	// ErrReleased is returned when using a group after Release.
	ErrReleased = errors.New("process group released")
	// ErrTerminated is returned when spawning into a terminated group.
	ErrTerminated = errors.New("process group terminated")
)

// Group is a set of processes that are signaled and waited on together.
//
// A Group is owned by exactly one job. Spawn must not be called after Wait.
type Group interface {
	// Spawn starts cmd as a member of the group.
	Spawn(cmd *exec.Cmd) error
	// Interrupt asks every process in the group to stop.
	Interrupt() error
	// Terminate forcibly kills every process in the group, including
	// descendants where the platform allows it. Later calls do nothing.
	Terminate() error
	// Wait blocks until every spawned process exits and returns their
	// statuses in spawn order. It may be called more than once.
	Wait() []ExitStatus
	// Pids returns the ids of the spawned processes.
	Pids() []int
	// Release frees the native grouping object, terminating anything still
	// running. Only the first call has an effect.
	Release() error
}

// TerminalController is implemented by groups that can be made the
// foreground job of a terminal.
type TerminalController interface {
	// Foreground hands tty to the group. The returned function hands it back
	// to the caller's process group.
	Foreground(tty *os.File) (restore func() error, err error)
}

// New creates an empty group for the current platform.
func New() (Group, error) {
	return newGroup()
}

// ExitStatus describes how a process ended.
type ExitStatus struct {
	// Code is the exit code, or 128 plus the signal number for processes
	// killed by a signal.
	Code int
	// Signal holds the name of the terminating signal, if any.
	Signal string
	// Err is set if the process couldn't be waited on.
	Err error
}

// Signaled reports whether the process was killed by a signal.
func (s ExitStatus) Signaled() bool {
	return s.Signal != ""
}

func (s ExitStatus) String() string {
	switch {
	case s.Err != nil:
		return fmt.Sprintf("error: %v", s.Err)
	case s.Signaled():
		return fmt.Sprintf("signal: %s", s.Signal)
	default:
		return fmt.Sprintf("exit status %d", s.Code)
	}
}

func waitStatus(cmd *exec.Cmd) ExitStatus {
	err := cmd.Wait()
	if cmd.ProcessState == nil {
		return ExitStatus{Code: 1, Err: err}
	}
	return statusFromState(cmd.ProcessState)
}
