package commands

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/josephlewis42/flexsh/core/alias"
	"github.com/josephlewis42/flexsh/core/executor"
	"github.com/josephlewis42/flexsh/core/vos"
	getopt "github.com/pborman/getopt/v2"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Shell is the session builtins run in.
type Shell interface {
	// Env holds the shell's variables.
	Env() vos.VEnv
	// Fs is the filesystem paths are resolved against.
	Fs() afero.Fs
	// Getwd returns the absolute working directory.
	Getwd() string
	// Chdir changes the working directory, dir may be relative.
	Chdir(dir string) error
	Aliases() *alias.Table
	History() []string
	ClearHistory()
	// Exit ends the session once the current line finishes.
	Exit(code int)
	// LookPath finds an executable on PATH.
	LookPath(name string) (string, error)
	Logger() *zap.Logger
}

// Proc is a single invocation of a builtin.
type Proc struct {
	Ctx    context.Context
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Shell  Shell
}

// LogInvalidInvocation records a builtin being called with bad arguments.
func (p *Proc) LogInvalidInvocation(err error) {
	p.Shell.Logger().Debug("invalid builtin invocation",
		zap.Strings("args", p.Args),
		zap.Error(err))
}

// BuiltinFunc is the entry point of a builtin, it returns the exit status.
type BuiltinFunc func(p *Proc) int

// Entry describes a registered builtin.
type Entry struct {
	Name  string
	Short string
	Proc  BuiltinFunc
}

// AllBuiltins holds all registered builtins by name.
var AllBuiltins = make(map[string]Entry)

func addBuiltin(name, short string, cmd BuiltinFunc) {
	if _, ok := AllBuiltins[name]; ok {
		panic(fmt.Sprintf("duplicate builtin %q", name))
	}
	AllBuiltins[name] = Entry{Name: name, Short: short, Proc: cmd}
}

// ListBuiltinCommands returns every builtin sorted by name.
func ListBuiltinCommands() []Entry {
	var out []Entry
	for _, entry := range AllBuiltins {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// IsBuiltin reports whether name is a shell builtin.
func IsBuiltin(name string) bool {
	_, ok := AllBuiltins[name]
	return ok
}

// Registry resolves builtins for the executor, binding them to a shell.
type Registry struct {
	shell Shell
}

var _ executor.Builtins = (*Registry)(nil)

// NewRegistry creates a registry for builtins running in shell.
func NewRegistry(shell Shell) *Registry {
	return &Registry{shell: shell}
}

// Resolve implements executor.Builtins.
func (r *Registry) Resolve(name string) (executor.Builtin, bool) {
	entry, ok := AllBuiltins[name]
	if !ok {
		return nil, false
	}

	return executor.BuiltinFunc(func(ctx context.Context, args []string, stdio executor.Stdio) int {
		return entry.Proc(r.newProc(ctx, args, stdio))
	}), true
}

func (r *Registry) newProc(ctx context.Context, args []string, stdio executor.Stdio) *Proc {
	p := &Proc{
		Ctx:    ctx,
		Args:   args,
		Stdin:  stdio.In,
		Stdout: stdio.Out,
		Stderr: stdio.Err,
		Shell:  r.shell,
	}
	if p.Stdin == nil {
		p.Stdin = eofReader{}
	}
	if p.Stdout == nil {
		p.Stdout = io.Discard
	}
	if p.Stderr == nil {
		p.Stderr = io.Discard
	}
	return p
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

type SimpleCommand struct {
	// Use holds a one line usage string
	Use string
	// Short holds a one line description of the command.
	Short string
	// ShowHelp sets whether help is displayed or not.
	// If this is non-nil when Run() is called, then the default help flag isn't
	// added.
	ShowHelp *bool
	// NeverBail skips interacting with stdout/stderr on failure and
	// always runs the callback.
	NeverBail bool

	flags *getopt.Set
}

// Flags gets the command's flag set.
func (s *SimpleCommand) Flags() *getopt.Set {
	if s.flags == nil {
		s.flags = getopt.New()
	}

	return s.flags
}

// PrintHelp writes help for the command to the given writer.
func (s *SimpleCommand) PrintHelp(w io.Writer) {
	fmt.Fprint(w, "usage: ")
	fmt.Fprintln(w, s.Use)
	fmt.Fprintln(w, s.Short)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	s.Flags().PrintOptions(w)
}

// Run the command, if flag parsing was succcessful call the callback.
func (s *SimpleCommand) Run(p *Proc, callback func() int) int {
	opts := s.Flags()

	// Add help flag if not overridden.
	if s.ShowHelp == nil {
		s.ShowHelp = opts.BoolLong("help", 'h', "show this help and exit")
	}

	err := opts.Getopt(p.Args, nil)
	if err != nil {
		p.LogInvalidInvocation(err)
	}

	if err != nil && !s.NeverBail {
		fmt.Fprintf(p.Stderr, "%s: %s\n\n", p.Args[0], err)

		s.PrintHelp(p.Stderr)
		return executor.ExitUsage
	}

	if *s.ShowHelp {
		s.PrintHelp(p.Stdout)
		return 0
	}

	return callback()
}

// RunEachArg runs callback for every positional argument, reporting errors
// on stderr. The status is 1 if any callback failed.
func (s *SimpleCommand) RunEachArg(p *Proc, callback func(string) error) int {
	return s.Run(p, func() int {
		anyFailed := false
		for _, arg := range s.Flags().Args() {
			if err := callback(arg); err != nil {
				fmt.Fprintf(p.Stderr, "%s: %v\n", p.Args[0], err)
				anyFailed = true
			}
		}

		if anyFailed {
			return 1
		}
		return 0
	})
}

// BytesToHuman formats a byte count with a decimal unit suffix, e.g. 1.5K.
func BytesToHuman(bytes int64) string {
	for _, e := range []struct {
		unit  string
		power int64
	}{
		{"P", 1e15},
		{"T", 1e12},
		{"G", 1e9},
		{"M", 1e6},
		{"K", 1e3},
	} {
		quotient := bytes / e.power
		switch {
		case quotient == 0:
			continue
		case quotient >= 10:
			return fmt.Sprintf("%d%s", quotient, e.unit)
		default:
			return fmt.Sprintf("%0.1f%s", float64(bytes)/float64(e.power), e.unit)
		}
	}

	return fmt.Sprintf("%d", bytes)
}
