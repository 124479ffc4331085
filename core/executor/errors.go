package executor

import (
	"errors"
	"fmt"
	"io/fs"
)

// Exit codes shared by the executor and the shell.
const (
	ExitSuccess       = 0
	ExitFailure       = 1
	ExitUsage         = 2
	ExitCannotExecute = 126
	ExitNotFound      = 127
	ExitInterrupted   = 130
)

var (
	ErrCommandNotFound  = errors.New("command not found")
	ErrRedirectTarget   = errors.New("redirection target unavailable")
	ErrSpawnFailed      = errors.New("spawn failed")
	ErrGroupUnavailable = errors.New("process group unavailable")
)

// ExecError is returned when a pipeline can't be started. Any processes
// that were started have been torn down by the time it's returned.
type ExecError struct {
	// Kind is one of the ErrCommandNotFound, ErrRedirectTarget,
	// ErrSpawnFailed or ErrGroupUnavailable sentinels.
	Kind error
	// Name is the command or path involved.
	Name string
	Err  error
}

func (e *ExecError) Error() string {
	switch {
	case e.Err == nil:
		return fmt.Sprintf("%s: %v", e.Name, e.Kind)
	case e.Name == "":
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %v", e.Name, e.Err)
	}
}

func (e *ExecError) Is(target error) bool {
	return target == e.Kind
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ExitCode maps an error from Run to the status a shell reports for it.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrRedirectTarget):
		return ExitFailure
	case errors.Is(err, fs.ErrPermission):
		return ExitCannotExecute
	case errors.Is(err, ErrCommandNotFound):
		return ExitNotFound
	default:
		return ExitFailure
	}
}
