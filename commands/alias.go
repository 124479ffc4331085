package commands

import (
	"fmt"
	"strings"

	"github.com/josephlewis42/flexsh/core/alias"
	"github.com/josephlewis42/flexsh/core/executor"
)

// Alias lists or defines aliases.
func Alias(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "alias [NAME[=VALUE]...]",
		Short: "Define or display aliases.",
	}

	return cmd.Run(p, func() int {
		aliases := p.Shell.Aliases()

		args := cmd.Flags().Args()
		if len(args) == 0 {
			for _, a := range aliases.List() {
				fmt.Fprintln(p.Stdout, a)
			}
			return 0
		}

		status := 0
		for _, arg := range args {
			name, value, hasValue := strings.Cut(arg, "=")
			if hasValue {
				if err := aliases.Set(name, value); err != nil {
					fmt.Fprintf(p.Stderr, "%s: %v\n", p.Args[0], err)
					status = 1
				}
				continue
			}

			value, ok := aliases.Get(name)
			if !ok {
				fmt.Fprintf(p.Stderr, "%s: %s: not found\n", p.Args[0], name)
				status = 1
				continue
			}
			fmt.Fprintln(p.Stdout, alias.Alias{Name: name, Value: value})
		}
		return status
	})
}

// Unalias removes aliases.
func Unalias(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "unalias [-a] NAME...",
		Short: "Remove aliases.",
	}
	all := cmd.Flags().Bool('a', "remove all aliases")

	return cmd.Run(p, func() int {
		aliases := p.Shell.Aliases()
		if *all {
			for _, a := range aliases.List() {
				aliases.Remove(a.Name)
			}
			return 0
		}

		names := cmd.Flags().Args()
		if len(names) == 0 {
			fmt.Fprintf(p.Stderr, "usage: %s\n", cmd.Use)
			return executor.ExitUsage
		}

		status := 0
		for _, name := range names {
			if !aliases.Remove(name) {
				fmt.Fprintf(p.Stderr, "%s: %s: not found\n", p.Args[0], name)
				status = 1
			}
		}
		return status
	})
}

func init() {
	addBuiltin("alias", "Define or display aliases.", Alias)
	addBuiltin("unalias", "Remove aliases.", Unalias)
}
