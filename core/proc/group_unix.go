//go:build !windows

package proc

import (
	"errors"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// processGroup is a POSIX process group led by the first spawned process.
type processGroup struct {
	mu         sync.Mutex
	pgid       int
	cmds       []*exec.Cmd
	terminated bool
	reaped     bool
	released   bool

	waitOnce sync.Once
	statuses []ExitStatus
}

func newGroup() (Group, error) {
	return &processGroup{}, nil
}

// Spawn implements Group.Spawn.
//
// Processes are only reaped by Wait so the group leader's id stays reserved
// for the group while later stages are still being spawned.
func (g *processGroup) Spawn(cmd *exec.Cmd) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case g.released:
		return ErrReleased
	case g.terminated:
		return ErrTerminated
	}

	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.SysProcAttr.Pgid = g.pgid

	if err := cmd.Start(); err != nil {
		return err
	}
	if g.pgid == 0 {
		g.pgid = cmd.Process.Pid
	}
	g.cmds = append(g.cmds, cmd)
	return nil
}

// signal sends sig to the whole group. Interrupts stop once the spawned
// processes are reaped, kills don't: the group id stays reserved while any
// descendant remains in the group, so a kill after reaping still only reaches
// processes of this job.
func (g *processGroup) signal(sig syscall.Signal) error {
	g.mu.Lock()
	pgid := g.pgid
	reaped := g.reaped
	g.mu.Unlock()

	if pgid == 0 || (reaped && sig != unix.SIGKILL) {
		return nil
	}

	if err := unix.Kill(-pgid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return os.NewSyscallError("kill", err)
	}
	return nil
}

// Interrupt implements Group.Interrupt.
func (g *processGroup) Interrupt() error {
	g.mu.Lock()
	terminated := g.terminated
	g.mu.Unlock()

	if terminated {
		return nil
	}
	return g.signal(unix.SIGINT)
}

// Terminate implements Group.Terminate.
func (g *processGroup) Terminate() error {
	g.mu.Lock()
	if g.terminated {
		g.mu.Unlock()
		return nil
	}
	g.terminated = true
	g.mu.Unlock()

	return g.signal(unix.SIGKILL)
}

// Wait implements Group.Wait.
func (g *processGroup) Wait() []ExitStatus {
	g.waitOnce.Do(func() {
		g.mu.Lock()
		cmds := append([]*exec.Cmd(nil), g.cmds...)
		g.mu.Unlock()

		statuses := make([]ExitStatus, len(cmds))
		for i, cmd := range cmds {
			statuses[i] = waitStatus(cmd)
		}

		g.mu.Lock()
		g.reaped = true
		g.statuses = statuses
		g.mu.Unlock()
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ExitStatus(nil), g.statuses...)
}

// Pids implements Group.Pids.
func (g *processGroup) Pids() []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	pids := make([]int, 0, len(g.cmds))
	for _, cmd := range g.cmds {
		pids = append(pids, cmd.Process.Pid)
	}
	return pids
}

// Release implements Group.Release. POSIX has no native handle to close, but
// to match Job Object semantics anything still running is killed and reaped
// in the background.
func (g *processGroup) Release() error {
	g.mu.Lock()
	if g.released {
		g.mu.Unlock()
		return nil
	}
	g.released = true
	reaped := g.reaped
	g.mu.Unlock()

	if reaped {
		return nil
	}
	err := g.Terminate()
	go g.Wait()
	return err
}

func statusFromState(state *os.ProcessState) ExitStatus {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal()
		return ExitStatus{Code: 128 + int(sig), Signal: unix.SignalName(sig)}
	}
	return ExitStatus{Code: state.ExitCode()}
}
