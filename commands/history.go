package commands

import (
	"fmt"
)

// History shows or clears the session history.
func History(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "history [-c]",
		Short: "Display or clear the history list.",
	}
	clear := cmd.Flags().Bool('c', "clear the history by deleting all entries")

	return cmd.Run(p, func() int {
		if *clear {
			p.Shell.ClearHistory()
			return 0
		}

		for i, line := range p.Shell.History() {
			fmt.Fprintf(p.Stdout, "% 5d  %s\n", i+1, line)
		}
		return 0
	})
}

func init() {
	addBuiltin("history", "Display or clear the history list.", History)
}
