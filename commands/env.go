package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/josephlewis42/flexsh/core/shell"
)

// Env lists the environment, or the values of the named variables.
func Env(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "env [NAME...]",
		Short: "Print the environment or the named variables.",
	}

	return cmd.Run(p, func() int {
		env := p.Shell.Env()

		names := cmd.Flags().Args()
		if len(names) == 0 {
			vars := env.Environ()
			sort.Strings(vars)
			for _, envDef := range vars {
				fmt.Fprintln(p.Stdout, envDef)
			}
			return 0
		}

		status := 0
		for _, name := range names {
			if value, ok := env.LookupEnv(name); ok {
				fmt.Fprintln(p.Stdout, value)
			} else {
				status = 1
			}
		}
		return status
	})
}

// Export sets shell variables, which are always exported to commands.
func Export(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "export [NAME[=VALUE]...]",
		Short: "Set variables in the environment of commands.",
	}

	return cmd.Run(p, func() int {
		env := p.Shell.Env()

		args := cmd.Flags().Args()
		if len(args) == 0 {
			vars := env.Environ()
			sort.Strings(vars)
			for _, envDef := range vars {
				name, value, _ := strings.Cut(envDef, "=")
				fmt.Fprintf(p.Stdout, "export %s=%q\n", name, value)
			}
			return 0
		}

		status := 0
		for _, arg := range args {
			name, value, hasValue := strings.Cut(arg, "=")
			if !shell.IsName(name) {
				fmt.Fprintf(p.Stderr, "%s: `%s': not a valid identifier\n", p.Args[0], arg)
				status = 1
				continue
			}
			if !hasValue {
				// Every variable is already exported.
				continue
			}
			if err := env.Setenv(name, value); err != nil {
				fmt.Fprintf(p.Stderr, "%s: %v\n", p.Args[0], err)
				status = 1
			}
		}
		return status
	})
}

// Unset removes shell variables.
func Unset(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "unset [-v] [NAME...]",
		Short: "Unset shell variables.",
	}
	cmd.Flags().Bool('v', "treat NAME as a variable")

	return cmd.RunEachArg(p, func(name string) error {
		if !shell.IsName(name) {
			return fmt.Errorf("`%s': not a valid identifier", name)
		}
		return p.Shell.Env().Unsetenv(name)
	})
}

func init() {
	addBuiltin("env", "Print the environment or the named variables.", Env)
	addBuiltin("export", "Set variables in the environment of commands.", Export)
	addBuiltin("unset", "Unset shell variables.", Unset)
}
