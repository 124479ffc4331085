// Package executor runs parsed pipelines as builtins and operating system
// processes.
//
// Each pipeline becomes a job in a jobs.Table that owns the pipeline's
// proc.Group. Foreground pipelines block in Run until every stage exits or
// Interrupt is called; background pipelines return as soon as they're
// spawned and record their final status in the table.
package executor

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/josephlewis42/flexsh/core/jobs"
	"github.com/josephlewis42/flexsh/core/proc"
	"github.com/josephlewis42/flexsh/core/shell"
	"github.com/josephlewis42/flexsh/core/vos"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Stdio holds the standard streams of a stage.
type Stdio struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

// Builtin is a command that runs inside the shell process.
type Builtin interface {
	Invoke(ctx context.Context, args []string, stdio Stdio) int
}

// BuiltinFunc adapts a function to the Builtin interface.
type BuiltinFunc func(ctx context.Context, args []string, stdio Stdio) int

// Invoke implements Builtin.
func (f BuiltinFunc) Invoke(ctx context.Context, args []string, stdio Stdio) int {
	return f(ctx, args, stdio)
}

// Builtins resolves builtin commands by name.
type Builtins interface {
	Resolve(name string) (Builtin, bool)
}

// Options configures an Executor.
type Options struct {
	// Stdio are the streams stages inherit when not piped or redirected.
	Stdio Stdio
	// Env is exported to external commands and holds PATH.
	Env vos.VEnv
	// Fs is used for PATH lookups, defaults to the OS filesystem.
	Fs afero.Fs
	// Dir returns the working directory, defaults to os.Getwd.
	Dir func() string
	// Builtins take precedence over commands on PATH.
	Builtins Builtins
	// Jobs records every pipeline, a new table is created if nil.
	Jobs *jobs.Table
	// Logger receives diagnostics, defaults to a no-op logger.
	Logger *zap.Logger
	// InterruptGrace is how long an interrupted pipeline has to exit after
	// being interrupted before it's forcibly terminated.
	InterruptGrace time.Duration
	// NewGroup creates process groups, defaults to proc.New.
	NewGroup func() (proc.Group, error)
	// Terminal, if set, is handed to foreground jobs for the duration of
	// their run so they can read from it.
	Terminal *os.File
}

// Result describes a pipeline run.
type Result struct {
	JobID      int
	Background bool
	Status     jobs.Status
	// ExitCode is the status a shell reports, for background jobs it's 0.
	ExitCode int
	// Pids of the spawned processes.
	Pids []int
}

type foreground struct {
	interrupted chan struct{}
	once        sync.Once
}

// Executor runs pipelines. Only one foreground pipeline may run at a time.
type Executor struct {
	opts Options
	log  *zap.Logger

	mu sync.Mutex
	fg *foreground
}

// New creates an executor, filling in defaults for unset options.
func New(opts Options) *Executor {
	if opts.Env == nil {
		opts.Env = vos.NewMapEnvFromEnvList(os.Environ())
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Dir == nil {
		opts.Dir = func() string {
			dir, _ := os.Getwd()
			return dir
		}
	}
	if opts.Jobs == nil {
		opts.Jobs = jobs.NewTable()
	}
	if opts.NewGroup == nil {
		opts.NewGroup = proc.New
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Executor{opts: opts, log: log}
}

// Jobs returns the executor's job table.
func (e *Executor) Jobs() *jobs.Table {
	return e.opts.Jobs
}

// Interrupt stops the running foreground pipeline. It reports false and has
// no effect if no foreground pipeline is running; requests are never saved
// for a later pipeline.
func (e *Executor) Interrupt() bool {
	e.mu.Lock()
	fg := e.fg
	e.mu.Unlock()

	if fg == nil {
		return false
	}
	fg.once.Do(func() { close(fg.interrupted) })
	return true
}

// Busy reports whether a foreground pipeline is being spawned or waited on.
func (e *Executor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fg != nil
}

func (e *Executor) enterForeground() *foreground {
	fg := &foreground{interrupted: make(chan struct{})}

	e.mu.Lock()
	e.fg = fg
	e.mu.Unlock()
	return fg
}

func (e *Executor) leaveForeground(fg *foreground) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.fg == fg {
		e.fg = nil
	}
}

func exited(code int) jobs.Status {
	return jobs.Status{State: jobs.Exited, Code: code}
}

// Run executes a pipeline. Foreground pipelines are waited on and report the
// status of their last stage, or ExitInterrupted if they were interrupted
// through Interrupt or ctx. Background pipelines return once spawned.
//
// Errors are of type *ExecError; by the time one is returned no process of
// the pipeline is left running.
func (e *Executor) Run(ctx context.Context, p *shell.Pipeline) (Result, error) {
	if p.AssignmentOnly() {
		if err := vos.SetAll(e.opts.Env, p.Stages[0].Assignments); err != nil {
			return Result{Status: exited(ExitFailure), ExitCode: ExitFailure}, err
		}
		return Result{Status: exited(ExitSuccess)}, nil
	}

	plan, err := e.build(p)
	if err != nil {
		code := ExitCode(err)
		return Result{Status: exited(code), ExitCode: code}, err
	}

	group, err := e.opts.NewGroup()
	if err != nil {
		e.log.Warn("couldn't create process group", zap.Error(err))
		return Result{Status: exited(ExitFailure), ExitCode: ExitFailure},
			&ExecError{Kind: ErrGroupUnavailable, Err: err}
	}

	id := e.opts.Jobs.Add(p, group, p.Background)
	log := e.log.With(zap.Int("job", id), zap.String("pipeline", p.Source))

	runCtx := ctx
	var fg *foreground
	if p.Background {
		runCtx = context.WithoutCancel(ctx)
	} else {
		// Interrupts are accepted from here on, even while stages are
		// still being spawned.
		fg = e.enterForeground()
		defer e.leaveForeground(fg)
	}

	r, err := e.spawn(runCtx, group, plan, p.Background, log)
	if err != nil {
		e.opts.Jobs.Remove(id)
		code := ExitCode(err)
		return Result{JobID: id, Status: exited(code), ExitCode: code}, err
	}

	if p.Background {
		go e.finishBackground(id, r, log)
		return Result{
			JobID:      id,
			Background: true,
			Status:     jobs.Status{State: jobs.Running},
			Pids:       group.Pids(),
		}, nil
	}

	restore := e.handTerminal(group, log)
	status := e.waitForeground(ctx, fg, r, log)
	restore()
	pids := group.Pids()
	e.opts.Jobs.SetStatus(id, status)
	if _, err := e.opts.Jobs.Remove(id); err != nil {
		log.Warn("couldn't release job", zap.Error(err))
	}

	return Result{JobID: id, Status: status, ExitCode: status.Code, Pids: pids}, nil
}

// handTerminal makes the group the terminal's foreground job if the
// platform supports it. The returned function takes the terminal back.
func (e *Executor) handTerminal(group proc.Group, log *zap.Logger) func() {
	nop := func() {}
	if e.opts.Terminal == nil {
		return nop
	}
	tc, ok := group.(proc.TerminalController)
	if !ok {
		return nop
	}

	restore, err := tc.Foreground(e.opts.Terminal)
	if err != nil {
		log.Debug("couldn't hand over terminal", zap.Error(err))
		return nop
	}
	return func() {
		if err := restore(); err != nil {
			log.Warn("couldn't reclaim terminal", zap.Error(err))
		}
	}
}

type plannedStage struct {
	stage   *shell.Stage
	builtin Builtin
	path    string
}

// build resolves every stage to a builtin or an executable.
func (e *Executor) build(p *shell.Pipeline) ([]plannedStage, error) {
	plan := make([]plannedStage, len(p.Stages))
	for i := range p.Stages {
		st := &p.Stages[i]
		plan[i].stage = st

		if e.opts.Builtins != nil {
			if b, ok := e.opts.Builtins.Resolve(st.Name); ok {
				plan[i].builtin = b
				continue
			}
		}

		path, err := e.LookPath(st.Name)
		switch {
		case errors.Is(err, ErrNotFound) || st.Name == "":
			return nil, &ExecError{Kind: ErrCommandNotFound, Name: st.Name}
		case err != nil:
			return nil, &ExecError{Kind: ErrCommandNotFound, Name: st.Name, Err: err}
		}
		plan[i].path = path
	}
	return plan, nil
}

// LookPath finds an external command using the executor's PATH and working
// directory.
func (e *Executor) LookPath(name string) (string, error) {
	if name == "" {
		return "", ErrNotFound
	}
	return LookPath(e.opts.Fs, e.opts.Env.Getenv("PATH"), e.opts.Dir(), name)
}

// running is a spawned pipeline.
type running struct {
	group proc.Group
	// external holds the stage index of each spawned process in spawn order.
	external []int
	// codes holds builtin exit codes by stage index.
	codes    []int
	builtins sync.WaitGroup
	start    time.Time
}

// wait blocks until every process and builtin of the pipeline finishes.
func (r *running) wait() []proc.ExitStatus {
	statuses := r.group.Wait()
	r.builtins.Wait()
	return statuses
}

// status returns the status of the last stage.
func (r *running) status(statuses []proc.ExitStatus) jobs.Status {
	last := len(r.codes) - 1
	for i, idx := range r.external {
		if idx != last || i >= len(statuses) {
			continue
		}
		st := statuses[i]
		if st.Signaled() {
			return jobs.Status{State: jobs.Signaled, Code: st.Code, Signal: st.Signal}
		}
		return exited(st.Code)
	}
	return exited(r.codes[last])
}

// waitForeground races the pipeline's completion against an interrupt. An
// interrupt that arrived before the wait started wins.
func (e *Executor) waitForeground(ctx context.Context, fg *foreground, r *running, log *zap.Logger) jobs.Status {
	done := make(chan []proc.ExitStatus, 1)
	go func() { done <- r.wait() }()

	select {
	case <-fg.interrupted:
	case <-ctx.Done():
	default:
		select {
		case statuses := <-done:
			status := r.status(statuses)
			log.Debug("pipeline completed",
				zap.Stringer("status", status),
				zap.Duration("duration", time.Since(r.start)))
			return status
		case <-fg.interrupted:
		case <-ctx.Done():
		}
	}

	log.Info("interrupting pipeline", zap.Duration("grace", e.opts.InterruptGrace))
	e.stop(r, done, log)
	return jobs.Status{State: jobs.Signaled, Code: ExitInterrupted, Signal: "SIGINT"}
}

// stop interrupts the group, escalating to termination once the grace period
// runs out, and returns after everything has exited.
func (e *Executor) stop(r *running, done <-chan []proc.ExitStatus, log *zap.Logger) {
	if err := r.group.Interrupt(); err != nil {
		log.Warn("couldn't interrupt process group", zap.Error(err))
	}

	if e.opts.InterruptGrace > 0 {
		timer := time.NewTimer(e.opts.InterruptGrace)
		defer timer.Stop()

		select {
		case <-done:
			// The spawned processes are gone, descendants may not be.
			if err := r.group.Terminate(); err != nil {
				log.Warn("couldn't terminate process group", zap.Error(err))
			}
			return
		case <-timer.C:
		}
	}

	if err := r.group.Terminate(); err != nil {
		log.Warn("couldn't terminate process group", zap.Error(err))
	}
	<-done
}

func (e *Executor) finishBackground(id int, r *running, log *zap.Logger) {
	status := r.status(r.wait())
	log.Debug("background job finished",
		zap.Stringer("status", status),
		zap.Duration("duration", time.Since(r.start)))

	if err := e.opts.Jobs.SetStatus(id, status); err != nil {
		log.Debug("background job was removed before finishing", zap.Error(err))
	}
}
