//go:build !windows

package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/josephlewis42/flexsh/core/jobs"
	"github.com/josephlewis42/flexsh/core/proc"
	"github.com/josephlewis42/flexsh/core/shell"
	"github.com/josephlewis42/flexsh/core/vos"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"
)

type builtinMap map[string]BuiltinFunc

func (b builtinMap) Resolve(name string) (Builtin, bool) {
	f, ok := b[name]
	if !ok {
		return nil, false
	}
	return f, true
}

type testShell struct {
	exec   *Executor
	dir    string
	env    *vos.MapEnv
	stdout *bytes.Buffer
	stderr *bytes.Buffer

	mu     sync.Mutex
	groups []proc.Group
	args   [][]string
}

func newTestShell(t *testing.T, options ...func(*Options)) *testShell {
	t.Helper()

	ts := &testShell{
		dir:    t.TempDir(),
		env:    vos.NewMapEnvFromEnvList(os.Environ()),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}

	builtins := builtinMap{
		"hello": func(ctx context.Context, args []string, stdio Stdio) int {
			io.WriteString(stdio.Out, "hello\n")
			return 0
		},
		"upper": func(ctx context.Context, args []string, stdio Stdio) int {
			in, err := io.ReadAll(stdio.In)
			if err != nil {
				return 1
			}
			io.WriteString(stdio.Out, strings.ToUpper(string(in)))
			return 0
		},
		"exit3": func(ctx context.Context, args []string, stdio Stdio) int {
			return 3
		},
		"record": func(ctx context.Context, args []string, stdio Stdio) int {
			ts.mu.Lock()
			defer ts.mu.Unlock()
			ts.args = append(ts.args, args)
			return 0
		},
	}

	opts := Options{
		Stdio:    Stdio{Out: ts.stdout, Err: ts.stderr},
		Env:      ts.env,
		Fs:       afero.NewOsFs(),
		Dir:      func() string { return ts.dir },
		Builtins: builtins,
		Jobs:     jobs.NewTable(),
		NewGroup: func() (proc.Group, error) {
			g, err := proc.New()
			if err == nil {
				ts.mu.Lock()
				ts.groups = append(ts.groups, g)
				ts.mu.Unlock()
			}
			return g, err
		},
	}
	for _, opt := range options {
		opt(&opts)
	}

	ts.exec = New(opts)
	t.Cleanup(func() { ts.exec.Jobs().TerminateAll() })
	return ts
}

func (ts *testShell) compile(t *testing.T, line string) *shell.Pipeline {
	t.Helper()

	p, err := shell.Compile(line, &shell.Expander{Env: ts.env, Fs: afero.NewOsFs(), Dir: ts.dir})
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

func (ts *testShell) run(t *testing.T, line string) (Result, error) {
	t.Helper()
	return ts.exec.Run(context.Background(), ts.compile(t, line))
}

func (ts *testShell) readFile(t *testing.T, name string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(ts.dir, name))
	require.NoError(t, err)
	return string(data)
}

func (ts *testShell) allPids() []int {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	var pids []int
	for _, g := range ts.groups {
		pids = append(pids, g.Pids()...)
	}
	return pids
}

func assertNoProcesses(t *testing.T, pids []int) {
	t.Helper()

	for _, pid := range pids {
		err := unix.Kill(pid, 0)
		assert.True(t, errors.Is(err, unix.ESRCH), "process %d is still alive: %v", pid, err)
	}
}

func TestRun_pipeline(t *testing.T) {
	ts := newTestShell(t)

	p := ts.compile(t, `printf 'a\nc\nb\n' | sort | uniq`)
	require.Len(t, p.Stages, 3)

	res, err := ts.exec.Run(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, jobs.Status{State: jobs.Exited, Code: 0}, res.Status)
	assert.Equal(t, "a\nb\nc\n", ts.stdout.String())
	assert.Equal(t, 0, ts.exec.Jobs().Len())
	assertNoProcesses(t, res.Pids)
}

func TestRun_lastStageStatus(t *testing.T) {
	cases := []struct {
		line string
		want int
	}{
		{"false | true", 0},
		{"true | false", 1},
		{"sh -c 'exit 3'", 3},
		{"exit3 | true", 0},
		{"true | exit3", 3},
		{"hello | sh -c 'cat >/dev/null; exit 4'", 4},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			ts := newTestShell(t)

			res, err := ts.run(t, tc.line)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.ExitCode)
		})
	}
}

func TestRun_redirectTruncate(t *testing.T) {
	ts := newTestShell(t)

	for i := 0; i < 2; i++ {
		res, err := ts.run(t, "echo hi > f.txt")
		require.NoError(t, err)
		require.Equal(t, 0, res.ExitCode)
	}

	assert.Equal(t, "hi\n", ts.readFile(t, "f.txt"))
	assert.Empty(t, ts.stdout.String())
}

func TestRun_redirectAppend(t *testing.T) {
	ts := newTestShell(t)

	for i := 0; i < 2; i++ {
		_, err := ts.run(t, "echo hi >> f.txt")
		require.NoError(t, err)
	}

	assert.Equal(t, "hi\nhi\n", ts.readFile(t, "f.txt"))
}

func TestRun_redirectWinsOverPipe(t *testing.T) {
	ts := newTestShell(t)

	res, err := ts.run(t, "echo hi > f.txt | cat")
	require.NoError(t, err)

	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hi\n", ts.readFile(t, "f.txt"))
	assert.Empty(t, ts.stdout.String())
}

func TestRun_redirectInputAndStderr(t *testing.T) {
	ts := newTestShell(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.dir, "in.txt"), []byte("b\na\n"), 0644))

	_, err := ts.run(t, "sort < in.txt")
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", ts.stdout.String())

	_, err = ts.run(t, "sh -c 'echo oops >&2' 2> err.txt")
	require.NoError(t, err)
	assert.Equal(t, "oops\n", ts.readFile(t, "err.txt"))
	assert.Empty(t, ts.stderr.String())
}

func TestRun_builtinRedirect(t *testing.T) {
	ts := newTestShell(t)

	_, err := ts.run(t, "hello > out.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", ts.readFile(t, "out.txt"))
}

func TestRun_builtinsInPipeline(t *testing.T) {
	ts := newTestShell(t)

	res, err := ts.run(t, "hello | tr a-z A-Z")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "HELLO\n", ts.stdout.String())

	ts.stdout.Reset()
	res, err = ts.run(t, "printf 'abc' | upper")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "ABC", ts.stdout.String())
}

func TestRun_missingInputRedirect(t *testing.T) {
	ts := newTestShell(t)

	res, err := ts.run(t, "cat < missing.txt")
	assert.True(t, errors.Is(err, ErrRedirectTarget), "got %v", err)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Contains(t, err.Error(), "missing.txt")
	assert.Equal(t, 0, ts.exec.Jobs().Len())
}

func TestRun_commandNotFound(t *testing.T) {
	ts := newTestShell(t)

	res, err := ts.run(t, "true | no-such-command-flexsh")
	assert.True(t, errors.Is(err, ErrCommandNotFound), "got %v", err)
	assert.Equal(t, ExitNotFound, res.ExitCode)
	assert.Equal(t, "no-such-command-flexsh: command not found", err.Error())
	assert.Equal(t, 0, ts.exec.Jobs().Len())
	assert.Empty(t, ts.allPids(), "nothing should be spawned")
}

func TestRun_notExecutable(t *testing.T) {
	ts := newTestShell(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.dir, "script"), []byte("#!/bin/sh\n"), 0644))

	res, err := ts.run(t, "./script")
	assert.Error(t, err)
	assert.Equal(t, ExitCannotExecute, res.ExitCode)
}

func TestRun_spawnFailureTearsDown(t *testing.T) {
	ts := newTestShell(t)

	res, err := ts.run(t, "sleep 30 | cat < missing.txt")
	assert.True(t, errors.Is(err, ErrRedirectTarget), "got %v", err)
	assert.Equal(t, ExitFailure, res.ExitCode)

	pids := ts.allPids()
	require.Len(t, pids, 1, "sleep should have been spawned")
	assertNoProcesses(t, pids)
	assert.Equal(t, 0, ts.exec.Jobs().Len())
}

func TestRun_interrupt(t *testing.T) {
	ts := newTestShell(t)

	type outcome struct {
		res Result
		err error
	}
	p := ts.compile(t, "sleep 30")
	done := make(chan outcome, 1)
	go func() {
		res, err := ts.exec.Run(context.Background(), p)
		done <- outcome{res, err}
	}()

	require.Eventually(t, ts.exec.Busy, 5*time.Second, 10*time.Millisecond)
	assert.True(t, ts.exec.Interrupt())
	// Further requests for the same job are harmless.
	ts.exec.Interrupt()

	select {
	case out := <-done:
		require.NoError(t, out.err)
		assert.Equal(t, ExitInterrupted, out.res.ExitCode)
		assert.Equal(t, jobs.Signaled, out.res.Status.State)
		require.Len(t, out.res.Pids, 1)
		assertNoProcesses(t, out.res.Pids)
	case <-time.After(10 * time.Second):
		t.Fatal("interrupted pipeline didn't return")
	}

	assert.False(t, ts.exec.Busy())
	assert.Equal(t, 0, ts.exec.Jobs().Len())
}

func TestRun_interruptEscalates(t *testing.T) {
	ts := newTestShell(t, func(o *Options) {
		o.InterruptGrace = 100 * time.Millisecond
	})

	p := ts.compile(t, `sh -c 'trap "" INT; sleep 30'`)
	done := make(chan Result, 1)
	go func() {
		res, _ := ts.exec.Run(context.Background(), p)
		done <- res
	}()

	require.Eventually(t, ts.exec.Busy, 5*time.Second, 10*time.Millisecond)
	// Give the trap a moment to be installed.
	time.Sleep(100 * time.Millisecond)
	ts.exec.Interrupt()

	select {
	case res := <-done:
		assert.Equal(t, ExitInterrupted, res.ExitCode)
		assertNoProcesses(t, res.Pids)
	case <-time.After(10 * time.Second):
		t.Fatal("pipeline ignoring SIGINT wasn't terminated")
	}
}

func TestRun_contextCancel(t *testing.T) {
	ts := newTestShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	res, err := ts.exec.Run(ctx, ts.compile(t, "sleep 30"))
	require.NoError(t, err)
	assert.Equal(t, ExitInterrupted, res.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRun_interruptIsNotQueued(t *testing.T) {
	ts := newTestShell(t)

	assert.False(t, ts.exec.Interrupt())
	assert.False(t, ts.exec.Interrupt())

	res, err := ts.run(t, "sleep 0.2")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, jobs.Exited, res.Status.State)
}

func TestRun_background(t *testing.T) {
	ts := newTestShell(t)

	start := time.Now()
	res, err := ts.run(t, "sleep 5 &")
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, res.Background)
	assert.Equal(t, 1, res.JobID)
	assert.Len(t, res.Pids, 1)

	list := ts.exec.Jobs().List()
	require.Len(t, list, 1)
	assert.Equal(t, jobs.Running, list[0].Status.State)
	assert.Equal(t, "sleep 5 &", list[0].Source)

	// Background jobs aren't affected by the foreground interrupt.
	assert.False(t, ts.exec.Interrupt())

	require.NoError(t, ts.exec.Jobs().TerminateAll())
	require.Eventually(t, func() bool {
		return errors.Is(unix.Kill(res.Pids[0], 0), unix.ESRCH)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestRun_backgroundCompletion(t *testing.T) {
	ts := newTestShell(t)

	res, err := ts.run(t, "sh -c 'exit 5' &")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		job, ok := ts.exec.Jobs().Get(res.JobID)
		return ok && job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	collected := ts.exec.Jobs().Collect()
	require.Len(t, collected, 1)
	assert.Equal(t, jobs.Status{State: jobs.Exited, Code: 5}, collected[0].Status)
	assert.Equal(t, 0, ts.exec.Jobs().Len())
}

func TestRun_globNoMatchPassesLiteral(t *testing.T) {
	ts := newTestShell(t)

	_, err := ts.run(t, "record nomatch*.xyz")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"record", "nomatch*.xyz"}}, ts.args)

	res, err := ts.run(t, "ls nomatch*.xyz")
	require.NoError(t, err)
	assert.NotEqual(t, 0, res.ExitCode)
	assert.Contains(t, ts.stderr.String(), "nomatch*.xyz")
}

func TestRun_assignments(t *testing.T) {
	ts := newTestShell(t)

	res, err := ts.run(t, "FLEXSH_A=1")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "1", ts.env.Getenv("FLEXSH_A"))

	_, err = ts.run(t, `FLEXSH_B=2 sh -c 'echo $FLEXSH_A$FLEXSH_B'`)
	require.NoError(t, err)
	assert.Equal(t, "12\n", ts.stdout.String())

	_, ok := ts.env.LookupEnv("FLEXSH_B")
	assert.False(t, ok, "prefix assignments only apply to the command")
}

func TestRun_workingDirectory(t *testing.T) {
	ts := newTestShell(t)

	_, err := ts.run(t, "pwd")
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(ts.dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(ts.stdout.String()))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRun_groupUnavailable(t *testing.T) {
	ts := newTestShell(t, func(o *Options) {
		o.NewGroup = func() (proc.Group, error) {
			return nil, errors.New("out of handles")
		}
	})

	res, err := ts.run(t, "true")
	assert.True(t, errors.Is(err, ErrGroupUnavailable), "got %v", err)
	assert.Equal(t, ExitFailure, res.ExitCode)

	// The executor keeps working after the failure.
	assert.Equal(t, 0, ts.exec.Jobs().Len())
}

func TestRun_logging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ts := newTestShell(t, func(o *Options) {
		o.Logger = zap.New(core)
	})

	_, err := ts.run(t, "true | hello")
	require.NoError(t, err)

	var messages []string
	for _, entry := range logs.All() {
		messages = append(messages, entry.Message)
	}
	assert.Contains(t, messages, "spawned stage")
	assert.Contains(t, messages, "started builtin")
	assert.Contains(t, messages, "pipeline completed")

	completed := logs.FilterMessage("pipeline completed").All()
	require.Len(t, completed, 1)
	assert.Equal(t, zapcore.DebugLevel, completed[0].Level)
	assert.Equal(t, "true | hello", completed[0].ContextMap()["pipeline"])
}

// processRunning reports whether pid is a live process. Zombies count as exited.
func processRunning(pid int) bool {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err == nil {
		fields := strings.Fields(string(stat[bytes.LastIndexByte(stat, ')')+1:]))
		return len(fields) > 0 && fields[0] != "Z"
	}
	return !errors.Is(unix.Kill(pid, 0), unix.ESRCH)
}

func TestRun_interruptReachesGrandchildren(t *testing.T) {
	ts := newTestShell(t, func(o *Options) {
		o.InterruptGrace = 5 * time.Second
	})

	// The asynchronous sleep ignores SIGINT and outlives the shell that
	// started it. Output goes to files so nothing waits on its pipes.
	p := ts.compile(t, `sh -c 'sleep 30 & echo $! > grandchild.pid; sleep 30' > out.txt 2> err.txt`)
	done := make(chan Result, 1)
	go func() {
		res, _ := ts.exec.Run(context.Background(), p)
		done <- res
	}()

	var grandchild int
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(ts.dir, "grandchild.pid"))
		if err != nil {
			return false
		}
		grandchild, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	require.True(t, processRunning(grandchild))

	start := time.Now()
	require.True(t, ts.exec.Interrupt())

	select {
	case res := <-done:
		assert.Equal(t, ExitInterrupted, res.ExitCode)
		assert.Less(t, time.Since(start), 4*time.Second, "finished by the grace timer, not by SIGINT")
	case <-time.After(10 * time.Second):
		t.Fatal("interrupted pipeline didn't return")
	}

	assert.Eventually(t, func() bool {
		return !processRunning(grandchild)
	}, 2*time.Second, 10*time.Millisecond, "grandchild %d survived the interrupt", grandchild)
}

// interruptingGroup interrupts the executor as soon as a process is spawned,
// before Run starts waiting on the pipeline.
type interruptingGroup struct {
	proc.Group
	interrupt func() bool

	mu       sync.Mutex
	accepted []bool
}

func (g *interruptingGroup) Spawn(cmd *exec.Cmd) error {
	err := g.Group.Spawn(cmd)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.accepted = append(g.accepted, g.interrupt())
	return err
}

func TestRun_interruptWhileSpawning(t *testing.T) {
	var (
		ts    *testShell
		group *interruptingGroup
	)
	ts = newTestShell(t, func(o *Options) {
		o.NewGroup = func() (proc.Group, error) {
			g, err := proc.New()
			if err != nil {
				return nil, err
			}
			group = &interruptingGroup{Group: g, interrupt: func() bool { return ts.exec.Interrupt() }}
			return group, nil
		}
	})

	start := time.Now()
	res, err := ts.run(t, "sleep 30 | sleep 30")
	require.NoError(t, err)

	assert.Equal(t, ExitInterrupted, res.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, []bool{true, true}, group.accepted)
	require.Len(t, res.Pids, 2)
	assertNoProcesses(t, res.Pids)
	assert.False(t, ts.exec.Busy())
}

func TestRun_badDescriptor(t *testing.T) {
	ts := newTestShell(t)

	p := ts.compile(t, "true > out.txt")
	p.Stages[0].Redirections[0].Fd = 99999999999

	res, err := ts.exec.Run(context.Background(), p)
	assert.True(t, errors.Is(err, ErrRedirectTarget), "got %v", err)
	assert.True(t, errors.Is(err, shell.ErrBadDescriptor), "got %v", err)
	assert.Equal(t, ExitFailure, res.ExitCode)
	assert.Equal(t, 0, ts.exec.Jobs().Len())
}

func TestRun_highDescriptor(t *testing.T) {
	ts := newTestShell(t)

	res, err := ts.run(t, `sh -c 'echo nine >&9' 9> nine.txt`)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "nine\n", ts.readFile(t, "nine.txt"))
}
