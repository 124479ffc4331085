package executor

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/josephlewis42/flexsh/core/proc"
	"github.com/josephlewis42/flexsh/core/shell"
	"go.uber.org/zap"
)

// stagePipes holds the pipe ends a stage hasn't claimed yet.
type stagePipes struct {
	in  *os.File
	out *os.File
}

func closePipes(pipes []stagePipes) {
	for i := range pipes {
		if pipes[i].in != nil {
			pipes[i].in.Close()
			pipes[i].in = nil
		}
		if pipes[i].out != nil {
			pipes[i].out.Close()
			pipes[i].out = nil
		}
	}
}

// stageIO is the wiring of a single stage. files are owned by the stage and
// closed once the process has been started or the builtin returns.
type stageIO struct {
	stdio Stdio
	extra []*os.File
	files []*os.File
}

func (s *stageIO) close() {
	closeFiles(s.files)
	s.files = nil
}

func closeFiles(files []*os.File) {
	for _, f := range files {
		f.Close()
	}
}

func (s *stageIO) own(f *os.File) {
	s.files = append(s.files, f)
}

func (s *stageIO) assign(fd int, f *os.File) {
	switch fd {
	case 0:
		s.stdio.In = f
	case 1:
		s.stdio.Out = f
	case 2:
		s.stdio.Err = f
	default:
		for len(s.extra) < fd-2 {
			s.extra = append(s.extra, nil)
		}
		s.extra[fd-3] = f
	}
}

// spawn starts every stage of the plan. Pipes between stages are all created
// before the first stage starts. If any stage fails, everything started so
// far is terminated and waited on before the error is returned.
func (e *Executor) spawn(ctx context.Context, group proc.Group, plan []plannedStage, background bool, log *zap.Logger) (_ *running, err error) {
	r := &running{
		group: group,
		codes: make([]int, len(plan)),
		start: time.Now(),
	}
	pipes := make([]stagePipes, len(plan))

	defer func() {
		if err == nil {
			return
		}
		closePipes(pipes)
		log.Warn("tearing down partially spawned pipeline", zap.Error(err))
		if termErr := group.Terminate(); termErr != nil {
			log.Warn("couldn't terminate process group", zap.Error(termErr))
		}
		r.wait()
	}()

	for i := 0; i < len(plan)-1; i++ {
		// An explicit redirection of stdout wins over the pipe.
		if plan[i].stage.Redirects(1) {
			continue
		}
		pr, pw, pipeErr := os.Pipe()
		if pipeErr != nil {
			return nil, &ExecError{Kind: ErrSpawnFailed, Name: plan[i].stage.Name, Err: pipeErr}
		}
		pipes[i].out = pw
		pipes[i+1].in = pr
	}

	for i, ps := range plan {
		sio, ioErr := e.openStageIO(i, ps, &pipes[i], background)
		if ioErr != nil {
			return nil, ioErr
		}

		if ps.builtin != nil {
			e.startBuiltin(ctx, r, i, ps, sio)
			log.Debug("started builtin", zap.Int("stage", i), zap.String("name", ps.stage.Name))
			continue
		}

		cmd := e.command(ps, sio)
		spawnErr := group.Spawn(cmd)
		sio.close()
		if spawnErr != nil {
			return nil, &ExecError{Kind: ErrSpawnFailed, Name: ps.stage.Name, Err: unwrapPathError(spawnErr)}
		}
		r.external = append(r.external, i)
		log.Debug("spawned stage",
			zap.Int("stage", i),
			zap.String("path", ps.path),
			zap.Int("pid", cmd.Process.Pid))
	}

	return r, nil
}

// openStageIO opens a stage's redirections and claims its pipe ends.
func (e *Executor) openStageIO(i int, ps plannedStage, pipes *stagePipes, background bool) (*stageIO, error) {
	type opened struct {
		fd   int
		file *os.File
	}

	// Redirections are opened first so a failure leaves the pipe ends to the
	// caller's cleanup.
	var redirects []opened
	closeOpened := func() {
		for _, o := range redirects {
			o.file.Close()
		}
	}
	for _, rd := range ps.stage.Redirections {
		if rd.Fd < 0 || rd.Fd > shell.MaxFd {
			closeOpened()
			return nil, &ExecError{Kind: ErrRedirectTarget, Name: strconv.Itoa(rd.Fd), Err: shell.ErrBadDescriptor}
		}
		f, err := openRedirect(e.resolvePath(rd.Path), rd.Kind)
		if err != nil {
			closeOpened()
			return nil, &ExecError{Kind: ErrRedirectTarget, Name: rd.Path, Err: unwrapPathError(err)}
		}
		redirects = append(redirects, opened{fd: rd.Fd, file: f})
	}

	sio := &stageIO{stdio: e.opts.Stdio}

	switch {
	case pipes.in != nil:
		sio.own(pipes.in)
		sio.stdio.In = pipes.in
		pipes.in = nil
	case (i > 0 || background) && !ps.stage.Redirects(0):
		// Stages that aren't connected to a pipe or the terminal read nothing.
		null, err := os.Open(os.DevNull)
		if err != nil {
			closeOpened()
			return nil, &ExecError{Kind: ErrSpawnFailed, Name: ps.stage.Name, Err: err}
		}
		sio.own(null)
		sio.stdio.In = null
	}

	if pipes.out != nil {
		sio.own(pipes.out)
		sio.stdio.Out = pipes.out
		pipes.out = nil
	}

	for _, o := range redirects {
		sio.own(o.file)
		sio.assign(o.fd, o.file)
	}

	return sio, nil
}

func (e *Executor) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(e.opts.Dir(), path)
}

func openRedirect(path string, kind shell.RedirectKind) (*os.File, error) {
	switch kind {
	case shell.RedirectInput:
		return os.Open(path)
	case shell.RedirectAppend:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	default:
		return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	}
}

func unwrapPathError(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}

func (e *Executor) command(ps plannedStage, sio *stageIO) *exec.Cmd {
	cmd := exec.Command(ps.path, ps.stage.Args...)
	cmd.Args[0] = ps.stage.Name
	cmd.Dir = e.opts.Dir()
	cmd.Env = append(e.opts.Env.Environ(), ps.stage.Assignments...)
	cmd.Stdin = sio.stdio.In
	cmd.Stdout = sio.stdio.Out
	cmd.Stderr = sio.stdio.Err
	cmd.ExtraFiles = sio.extra
	return cmd
}

func (e *Executor) startBuiltin(ctx context.Context, r *running, i int, ps plannedStage, sio *stageIO) {
	r.builtins.Add(1)
	go func() {
		defer r.builtins.Done()
		defer sio.close()
		r.codes[i] = ps.builtin.Invoke(ctx, ps.stage.Argv(), sio.stdio)
	}()
}
