package commands

import (
	"fmt"
	"text/tabwriter"
)

// Help lists the builtins.
func Help(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "help [NAME...]",
		Short: "Display information about builtin commands.",
	}

	return cmd.Run(p, func() int {
		names := cmd.Flags().Args()
		if len(names) == 0 {
			fmt.Fprintln(p.Stdout, "These shell commands are defined internally.")
			fmt.Fprintln(p.Stdout, "Type `NAME --help' to find out more about the command NAME.")
			fmt.Fprintln(p.Stdout)

			w := tabwriter.NewWriter(p.Stdout, 0, 4, 2, ' ', 0)
			for _, entry := range ListBuiltinCommands() {
				fmt.Fprintf(w, "%s\t%s\n", entry.Name, entry.Short)
			}
			w.Flush()
			return 0
		}

		status := 0
		for _, name := range names {
			entry, ok := AllBuiltins[name]
			if !ok {
				fmt.Fprintf(p.Stderr, "%s: no help topics match `%s'\n", p.Args[0], name)
				status = 1
				continue
			}
			fmt.Fprintf(p.Stdout, "%s: %s\n", entry.Name, entry.Short)
		}
		return status
	})
}

func init() {
	addBuiltin("help", "Display information about builtin commands.", Help)
}
