package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/josephlewis42/flexsh/core"
	"github.com/josephlewis42/flexsh/core/config"
	"github.com/josephlewis42/flexsh/core/executor"
	"github.com/josephlewis42/flexsh/core/logger"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

var (
	cfgPath   string
	command   string
	noColor   bool
	verbosity int
	logFormat string
)

// exitCode is the status of the last shell run by rootCmd.
var exitCode int

func loadConfig() (*config.Configuration, error) {
	path := cfgPath
	if path == "" {
		dir, err := config.Dir()
		if err != nil {
			return config.Default(), nil
		}
		path = dir
	}

	return config.LoadOrDefault(afero.NewOsFs(), path)
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flexsh [script]",
	Short: "An interactive command interpreter",
	Long: `flexsh runs pipelines of builtin and external commands.

With no arguments it reads commands from the terminal, or from standard input
if it isn't a terminal. A script file or a single command given with -c may be
run instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		code, err := runShell(cmd, args)
		exitCode = code
		return err
	},
}

func runShell(cmd *cobra.Command, args []string) (int, error) {
	cfg, err := loadConfig()
	if err != nil {
		return executor.ExitUsage, err
	}
	if noColor {
		cfg.Colors.Enabled = false
		color.NoColor = true
	}

	format := cfg.Logging.Format
	if logFormat != "" {
		format = logFormat
	}
	log, err := logger.NewWithWriter(logger.Raise(cfg.Logging.Level, verbosity), format, cmd.ErrOrStderr())
	if err != nil {
		return executor.ExitUsage, err
	}
	defer log.Sync()

	stdin := cmd.InOrStdin()
	tty, isFile := stdin.(*os.File)
	interactive := command == "" && len(args) == 0 && isFile && term.IsTerminal(int(tty.Fd()))

	opts := core.Options{
		Config: cfg,
		Stdin:  stdin,
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Logger: log,
	}
	if interactive {
		opts.Terminal = tty
	}

	sh, err := core.NewShell(opts)
	if err != nil {
		return executor.ExitFailure, err
	}
	defer func() {
		if err := sh.Close(); err != nil {
			log.Warn("couldn't terminate jobs", zap.Error(err))
		}
	}()

	log.Debug("starting shell",
		zap.Bool("interactive", interactive),
		zap.Strings("args", args))

	ctx := cmd.Context()
	switch {
	case command != "":
		return sh.RunCommand(ctx, command), nil

	case len(args) == 1:
		f, err := afero.NewOsFs().Open(args[0])
		if err != nil {
			return executor.ExitNotFound, fmt.Errorf("can't open script: %w", err)
		}
		defer f.Close()
		return sh.RunScript(ctx, f)

	case interactive:
		return sh.RunInteractive(ctx)

	default:
		return sh.RunScript(ctx, stdin)
	}
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It returns the status the process should exit with.
func Execute() int {
	return execute(os.Args[1:])
}

func execute(args []string) int {
	exitCode = 0
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if exitCode == 0 {
			return executor.ExitUsage
		}
	}
	return exitCode
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "configuration directory or file (default is the user config dir)")
	rootCmd.Flags().StringVarP(&command, "command", "c", "", "run a single command line and exit")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "increase log verbosity, may be repeated")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "", "log format: console or json (default from config)")
	rootCmd.Flags().SetInterspersed(false)
}
