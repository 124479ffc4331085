package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/josephlewis42/flexsh/commands"
	"github.com/spf13/cobra"
)

// builtinsCmd lists the shell's builtin commands
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "Show the builtin commands of the shell.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, entry := range commands.ListBuiltinCommands() {
			fmt.Fprintf(w, "%s\t%s\n", entry.Name, entry.Short)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
}
