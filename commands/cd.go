package commands

import (
	"fmt"
)

const (
	EnvHome   = "HOME"
	EnvPWD    = "PWD"
	EnvOldPWD = "OLDPWD"
)

// Cd changes the shell's working directory.
func Cd(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "cd [DIR|-]",
		Short: "Change the shell working directory.",
	}

	return cmd.Run(p, func() int {
		env := p.Shell.Env()
		args := cmd.Flags().Args()

		var dir string
		switch len(args) {
		case 0:
			home, ok := env.LookupEnv(EnvHome)
			if !ok || home == "" {
				fmt.Fprintf(p.Stderr, "%s: HOME not set\n", p.Args[0])
				return 1
			}
			dir = home
		case 1:
			dir = args[0]
		default:
			fmt.Fprintf(p.Stderr, "%s: too many arguments\n", p.Args[0])
			return 1
		}

		printDir := false
		if dir == "-" {
			old, ok := env.LookupEnv(EnvOldPWD)
			if !ok || old == "" {
				fmt.Fprintf(p.Stderr, "%s: OLDPWD not set\n", p.Args[0])
				return 1
			}
			dir = old
			printDir = true
		}

		previous := p.Shell.Getwd()
		if err := p.Shell.Chdir(dir); err != nil {
			fmt.Fprintf(p.Stderr, "%s: %s: %v\n", p.Args[0], dir, err)
			return 1
		}

		env.Setenv(EnvOldPWD, previous)
		env.Setenv(EnvPWD, p.Shell.Getwd())
		if printDir {
			fmt.Fprintln(p.Stdout, p.Shell.Getwd())
		}
		return 0
	})
}

var _ BuiltinFunc = Cd

func init() {
	addBuiltin("cd", "Change the shell working directory.", Cd)
}
