//go:build windows

package proc

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// jobObject groups processes in a kill-on-close Windows Job Object.
type jobObject struct {
	mu         sync.Mutex
	job        windows.Handle
	cmds       []*exec.Cmd
	terminated bool
	released   bool

	waitOnce sync.Once
	statuses []ExitStatus
}

func newGroup() (Group, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return nil, fmt.Errorf("configure job object: %w", err)
	}

	return &jobObject{job: job}, nil
}

var procNtResumeProcess = windows.NewLazySystemDLL("ntdll.dll").NewProc("NtResumeProcess")

// Spawn implements Group.Spawn. The process is created suspended in its own
// console process group, so console interrupts aimed at the shell don't reach
// it, and only resumed once it belongs to the job. Anything it starts is
// therefore in the job too.
func (g *jobObject) Spawn(cmd *exec.Cmd) error {
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
	cmd.SysProcAttr.CreationFlags |= windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_SUSPENDED

	if err := cmd.Start(); err != nil {
		return err
	}

	if err := g.adopt(cmd.Process.Pid); err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		return err
	}

	g.cmds = append(g.cmds, cmd)
	return nil
}

// adopt assigns a suspended process to the job and resumes it.
func (g *jobObject) adopt(pid int) error {
	access := uint32(windows.PROCESS_SET_QUOTA | windows.PROCESS_TERMINATE | windows.PROCESS_SUSPEND_RESUME)
	handle, err := windows.OpenProcess(access, false, uint32(pid))
	if err != nil {
		return os.NewSyscallError("OpenProcess", err)
	}
	defer windows.CloseHandle(handle)

	if err := windows.AssignProcessToJobObject(g.job, handle); err != nil {
		return fmt.Errorf("assign to job object: %w", err)
	}

	if err := procNtResumeProcess.Find(); err != nil {
		return err
	}
	r1, _, _ := procNtResumeProcess.Call(uintptr(handle))
	if status := windows.NTStatus(r1); status != windows.STATUS_SUCCESS {
		return fmt.Errorf("resume process: %w", status)
	}
	return nil
}

// Interrupt implements Group.Interrupt by terminating the job.
func (g *jobObject) Interrupt() error {
	return g.Terminate()
}

// Terminate implements Group.Terminate.
func (g *jobObject) Terminate() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.terminated || g.released {
		return nil
	}
	g.terminated = true

	if err := windows.TerminateJobObject(g.job, ExitInterrupted); err != nil {
		return os.NewSyscallError("TerminateJobObject", err)
	}
	return nil
}

// Wait implements Group.Wait.
func (g *jobObject) Wait() []ExitStatus {
	g.waitOnce.Do(func() {
		g.mu.Lock()
		cmds := append([]*exec.Cmd(nil), g.cmds...)
		g.mu.Unlock()

		statuses := make([]ExitStatus, len(cmds))
		for i, cmd := range cmds {
			statuses[i] = waitStatus(cmd)
		}

		g.mu.Lock()
		g.statuses = statuses
		g.mu.Unlock()
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ExitStatus(nil), g.statuses...)
}

// Pids implements Group.Pids.
func (g *jobObject) Pids() []int {
	g.mu.Lock()
	defer g.mu.Unlock()

	pids := make([]int, 0, len(g.cmds))
	for _, cmd := range g.cmds {
		pids = append(pids, cmd.Process.Pid)
	}
	return pids
}

// Release implements Group.Release. Closing the last handle to the job kills
// every process still associated with it.
func (g *jobObject) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return nil
	}
	g.released = true

	if err := windows.CloseHandle(g.job); err != nil {
		return os.NewSyscallError("CloseHandle", err)
	}
	return nil
}

func statusFromState(state *os.ProcessState) ExitStatus {
	return ExitStatus{Code: state.ExitCode()}
}
