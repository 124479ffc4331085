package core

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/josephlewis42/flexsh/commands"
	"github.com/josephlewis42/flexsh/core/alias"
	"github.com/josephlewis42/flexsh/core/config"
	"github.com/josephlewis42/flexsh/core/executor"
	"github.com/josephlewis42/flexsh/core/jobs"
	"github.com/josephlewis42/flexsh/core/vos"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	EnvHome     = "HOME"
	EnvPWD      = "PWD"
	EnvPath     = "PATH"
	EnvHostname = "HOSTNAME"
	EnvUser     = "USER"
)

var (
	ErrNoSuchDirectory = errors.New("no such file or directory")
	ErrNotDirectory    = errors.New("not a directory")
)

// Options configures a Shell.
type Options struct {
	Config *config.Configuration

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Env is the initial environment, defaults to the process environment.
	Env []string
	// Dir is the initial working directory, defaults to the process's.
	Dir string
	// Fs is used for directory changes, globbing and PATH lookups.
	Fs afero.Fs
	// Terminal is handed to foreground jobs when the shell is interactive.
	Terminal *os.File

	Logger *zap.Logger
}

// Shell is a single interpreter session.
type Shell struct {
	cfg     *config.Configuration
	fs      afero.Fs
	log     *zap.Logger
	stdin   io.Reader
	stdout  io.Writer
	stderr  io.Writer
	env     *vos.MapEnv
	aliases *alias.Table
	history *History
	exec    *executor.Executor

	promptColor *color.Color
	errorColor  *color.Color

	mu         sync.Mutex
	cwd        string
	lastStatus int
	exitCode   int
	exited     bool
	readline   *readline.Instance
}

var _ commands.Shell = (*Shell)(nil)

// NewShell creates a session, applying the configured aliases and
// environment.
func NewShell(opts Options) (*Shell, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	fsys := opts.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	environ := opts.Env
	if environ == nil {
		environ = os.Environ()
	}
	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}

	s := &Shell{
		cfg:         cfg,
		fs:          fsys,
		log:         log,
		stdin:       opts.Stdin,
		stdout:      opts.Stdout,
		stderr:      opts.Stderr,
		env:         vos.NewMapEnvFromEnvList(environ),
		aliases:     alias.NewTable(),
		history:     NewHistory(cfg.History),
		cwd:         filepath.Clean(dir),
		promptColor: newColor(cfg.Colors.PromptColor, cfg.Colors.Enabled, color.Bold),
		errorColor:  newColor(cfg.Colors.ErrorColor, cfg.Colors.Enabled),
	}
	if s.stdout == nil {
		s.stdout = io.Discard
	}
	if s.stderr == nil {
		s.stderr = io.Discard
	}

	if err := s.aliases.SetAll(cfg.Aliases); err != nil {
		return nil, err
	}
	for name, value := range cfg.Environment {
		s.env.Setenv(name, value)
	}
	s.env.Setenv(EnvPWD, s.cwd)

	s.exec = executor.New(executor.Options{
		Stdio:          executor.Stdio{In: s.stdin, Out: s.stdout, Err: s.stderr},
		Env:            s.env,
		Fs:             fsys,
		Dir:            s.Getwd,
		Builtins:       commands.NewRegistry(s),
		Jobs:           jobs.NewTable(),
		Logger:         log,
		InterruptGrace: cfg.Executor.InterruptGrace(),
		Terminal:       opts.Terminal,
	})

	return s, nil
}

// Env implements commands.Shell.
func (s *Shell) Env() vos.VEnv {
	return s.env
}

// Fs implements commands.Shell.
func (s *Shell) Fs() afero.Fs {
	return s.fs
}

// Getwd implements commands.Shell.
func (s *Shell) Getwd() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Chdir implements commands.Shell. The process's own working directory is
// never changed, commands are started in the shell's directory instead.
func (s *Shell) Chdir(dir string) error {
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(s.Getwd(), dir)
	}
	dir = filepath.Clean(dir)

	fi, err := s.fs.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrNoSuchDirectory
	case err != nil:
		return err
	case !fi.IsDir():
		return ErrNotDirectory
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cwd = dir
	return nil
}

// Aliases implements commands.Shell.
func (s *Shell) Aliases() *alias.Table {
	return s.aliases
}

// History implements commands.Shell.
func (s *Shell) History() []string {
	return s.history.Entries()
}

// ClearHistory implements commands.Shell.
func (s *Shell) ClearHistory() {
	s.history.Clear()

	s.mu.Lock()
	rl := s.readline
	s.mu.Unlock()
	if rl != nil {
		rl.ResetHistory()
	}
}

// Exit implements commands.Shell.
func (s *Shell) Exit(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exited = true
	s.exitCode = code
}

// Exited reports whether exit was requested and the status to exit with.
func (s *Shell) Exited() (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exited, s.exitCode
}

// LookPath implements commands.Shell.
func (s *Shell) LookPath(name string) (string, error) {
	return s.exec.LookPath(name)
}

// Logger implements commands.Shell.
func (s *Shell) Logger() *zap.Logger {
	return s.log
}

// Jobs returns the session's job table.
func (s *Shell) Jobs() *jobs.Table {
	return s.exec.Jobs()
}

// LastStatus returns the exit status of the last line run.
func (s *Shell) LastStatus() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastStatus
}

func (s *Shell) setStatus(code int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastStatus = code
	return code
}

// Close terminates every remaining job.
func (s *Shell) Close() error {
	if n := s.exec.Jobs().Len(); n > 0 {
		s.log.Debug("terminating remaining jobs", zap.Int("count", n))
	}
	return s.exec.Jobs().TerminateAll()
}

func (s *Shell) printError(err error) {
	s.errorColor.Fprintf(s.stderr, "flexsh: %v\n", err)
}
