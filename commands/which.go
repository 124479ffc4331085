package commands

import (
	"fmt"
)

// Which reports how each name would be run.
func Which(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "which [COMMAND...]",
		Short: "Locate a command.",
	}

	return cmd.Run(p, func() int {
		status := 0
		for _, name := range cmd.Flags().Args() {
			if IsBuiltin(name) {
				fmt.Fprintf(p.Stdout, "%s: shell builtin\n", name)
				continue
			}

			path, err := p.Shell.LookPath(name)
			if err != nil {
				fmt.Fprintf(p.Stderr, "%s: no %s in PATH\n", p.Args[0], name)
				status = 1
				continue
			}
			fmt.Fprintln(p.Stdout, path)
		}
		return status
	})
}

var _ BuiltinFunc = Which

func init() {
	addBuiltin("which", "Locate a command.", Which)
}
