//go:build !windows

package core

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/josephlewis42/flexsh/core/config"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/sys/unix"
)

// syncBuffer is written to by background jobs and read by tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type testSession struct {
	*Shell
	dir    string
	stdout *syncBuffer
	stderr *syncBuffer
}

func testConfig() *config.Configuration {
	cfg := config.Default()
	cfg.Colors.Enabled = false
	cfg.Aliases = map[string]string{"greet": "echo hi"}
	cfg.Environment = map[string]string{"FLEXSH_TEST": "yes", "FLEXSH_PAIR": "a b"}
	return cfg
}

func newTestSession(t *testing.T, options ...func(*Options)) *testSession {
	t.Helper()

	ts := &testSession{
		dir:    t.TempDir(),
		stdout: &syncBuffer{},
		stderr: &syncBuffer{},
	}
	opts := Options{
		Config: testConfig(),
		Stdout: ts.stdout,
		Stderr: ts.stderr,
		Env:    append(os.Environ(), "HOME="+ts.dir),
		Dir:    ts.dir,
	}
	for _, opt := range options {
		opt(&opts)
	}

	s, err := NewShell(opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts.Shell = s
	return ts
}

func (ts *testSession) run(line string) int {
	return ts.RunLine(context.Background(), line)
}

func TestShell_RunLine(t *testing.T) {
	cases := []struct {
		line       string
		wantStatus int
		wantOut    string
		wantErr    string
	}{
		{"echo hello | tr a-z A-Z", 0, "HELLO\n", ""},
		{"printf 'a\\nc\\nb\\n' | sort | uniq", 0, "a\nb\nc\n", ""},
		{"greet there", 0, "hi there\n", ""},
		{"echo $FLEXSH_TEST", 0, "yes\n", ""},
		{"false", 1, "", ""},
		{"sh -c 'exit 7'", 7, "", ""},
		{"echo 'oops", 2, "", "flexsh: syntax error: unterminated quote\n"},
		{"echo a | | b", 2, "", "flexsh: syntax error near \"|\": empty pipeline stage\n"},
		{"echo ${oops", 2, "", "bad substitution"},
		{"no-such-command-flexsh", 127, "", "flexsh: no-such-command-flexsh: command not found\n"},
		{"cat < missing.txt", 1, "", "flexsh: missing.txt: no such file or directory\n"},
		{"true 99999999999> out", 2, "", "flexsh: syntax error near \"99999999999\": bad file descriptor\n"},
		{"echo hi > $FLEXSH_PAIR", 2, "", "flexsh: $FLEXSH_PAIR: ambiguous redirect\n"},
		{"ls -a missing-dir", 1, "", "ls: missing-dir: no such file or directory\n"},
		{"# just a comment", 0, "", ""},
		{"   ", 0, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.line, func(t *testing.T) {
			ts := newTestSession(t)

			status := ts.run(tc.line)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantStatus, ts.LastStatus())
			assert.Equal(t, tc.wantOut, ts.stdout.String())
			if tc.wantErr == "" {
				assert.Empty(t, ts.stderr.String())
			} else {
				assert.Contains(t, ts.stderr.String(), tc.wantErr)
			}
		})
	}
}

func TestShell_specialParameters(t *testing.T) {
	ts := newTestSession(t)

	ts.run("sh -c 'exit 3'")
	ts.run("echo $?")
	assert.Equal(t, "3\n", ts.stdout.String())

	ts.stdout.Reset()
	ts.run("echo $$")
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", ts.stdout.String())

	ts.stdout.Reset()
	ts.run("echo ~")
	assert.Equal(t, ts.dir+"\n", ts.stdout.String())
}

func TestShell_assignments(t *testing.T) {
	ts := newTestSession(t)

	assert.Equal(t, 0, ts.run("FLEXSH_X=5"))
	ts.run(`sh -c 'echo $FLEXSH_X'`)
	assert.Equal(t, "5\n", ts.stdout.String())
}

func TestShell_cd(t *testing.T) {
	ts := newTestSession(t)
	require.NoError(t, os.Mkdir(filepath.Join(ts.dir, "sub"), 0755))

	assert.Equal(t, 0, ts.run("cd sub"))
	assert.Equal(t, filepath.Join(ts.dir, "sub"), ts.Getwd())
	assert.Equal(t, ts.Getwd(), ts.Env().Getenv(EnvPWD))

	// External commands start in the shell's directory.
	ts.run("sh -c 'basename $(pwd)'")
	assert.Equal(t, "sub\n", ts.stdout.String())

	assert.Equal(t, 1, ts.run("cd nope"))
	assert.Equal(t, "cd: nope: no such file or directory\n", ts.stderr.String())
}

func TestShell_globRelativeToCwd(t *testing.T) {
	ts := newTestSession(t)
	for _, name := range []string{"b.txt", "a.txt", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(ts.dir, name), nil, 0644))
	}

	ts.run("echo *.txt")
	assert.Equal(t, "a.txt b.txt\n", ts.stdout.String())

	ts.stdout.Reset()
	ts.run("echo nomatch*.xyz")
	assert.Equal(t, "nomatch*.xyz\n", ts.stdout.String())
}

func TestShell_redirects(t *testing.T) {
	ts := newTestSession(t)

	ts.run("echo hi > f.txt")
	ts.run("echo hi > f.txt")
	ts.run("echo there >> f.txt")

	data, err := os.ReadFile(filepath.Join(ts.dir, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi\nthere\n", string(data))
}

func TestShell_background(t *testing.T) {
	ts := newTestSession(t)

	start := time.Now()
	assert.Equal(t, 0, ts.run("sleep 0.2 &"))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Regexp(t, regexp.MustCompile(`^\[1\] \d+\n$`), ts.stderr.String())
	assert.Equal(t, 1, ts.Jobs().Len())

	require.Eventually(t, func() bool {
		job, ok := ts.Jobs().Get(1)
		return ok && job.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	ts.stderr.Reset()
	ts.ReportFinishedJobs()
	assert.Equal(t, "[1]  Done  sleep 0.2 &\n", ts.stderr.String())
	assert.Equal(t, 0, ts.Jobs().Len())
}

func TestShell_closeTerminatesJobs(t *testing.T) {
	ts := newTestSession(t)

	ts.run("sleep 30 &")
	jobList := ts.Jobs().List()
	require.Len(t, jobList, 1)
	pids := jobList[0].Pids

	require.NoError(t, ts.Close())
	assert.Equal(t, 0, ts.Jobs().Len())

	require.Eventually(t, func() bool {
		return errors.Is(unix.Kill(pids[0], 0), unix.ESRCH)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestShell_RunScript(t *testing.T) {
	ts := newTestSession(t)

	script := strings.Join([]string{
		"# setup",
		"",
		"NAME=world",
		"echo hello $NAME",
		"exit 4",
		"echo unreachable",
	}, "\n")

	status, err := ts.RunScript(context.Background(), strings.NewReader(script))
	require.NoError(t, err)
	assert.Equal(t, 4, status)
	assert.Equal(t, "hello world\n", ts.stdout.String())
}

func TestShell_RunScriptLastStatus(t *testing.T) {
	ts := newTestSession(t)

	status, err := ts.RunScript(context.Background(), strings.NewReader("true\nfalse\n"))
	require.NoError(t, err)
	assert.Equal(t, 1, status)
}

func TestShell_RunCommand(t *testing.T) {
	ts := newTestSession(t)

	assert.Equal(t, 0, ts.RunCommand(context.Background(), "echo one"))
	assert.Equal(t, 9, ts.RunCommand(context.Background(), "exit 9"))
	assert.Equal(t, "one\n", ts.stdout.String())
}

func TestShell_history(t *testing.T) {
	ts := newTestSession(t)
	ts.history.Add("ls")
	ts.history.Add("pwd")

	ts.run("history")
	assert.Equal(t, "    1  ls\n    2  pwd\n", ts.stdout.String())

	ts.run("history -c")
	assert.Empty(t, ts.History())
}

func TestShell_logging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	ts := newTestSession(t, func(o *Options) {
		o.Logger = zap.New(core)
	})

	ts.run("true")
	assert.Equal(t, 1, logs.FilterMessage("running line").Len())
	assert.Equal(t, 1, logs.FilterMessage("pipeline completed").Len())
}

func TestShell_prompt(t *testing.T) {
	ts := newTestSession(t, func(o *Options) {
		o.Env = []string{"USER=alice", "HOSTNAME=box", "HOME=/home/alice"}
		o.Dir = "/home/alice/src"
		o.Fs = afero.NewMemMapFs()
	})
	now := time.Date(2021, 6, 27, 12, 34, 56, 0, time.UTC)

	assert.Equal(t, "alice@box:~/src$ ", ts.renderPrompt(now))

	ts.setStatus(3)
	assert.Equal(t, "[3] alice@box:~/src$ ", ts.renderPrompt(now))

	ts.cfg.Prompt.ShowExitCode = false
	ts.cfg.Prompt.ShowTime = true
	assert.Equal(t, "12:34:56 alice@box:~/src$ ", ts.renderPrompt(now))

	ts.cwd = "/home/alice"
	ts.cfg.Prompt.ShowTime = false
	assert.Equal(t, "alice@box:~$ ", ts.renderPrompt(now))

	ts.cwd = "/home/alicex"
	assert.Equal(t, "alice@box:/home/alicex$ ", ts.renderPrompt(now))
}
