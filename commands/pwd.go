package commands

import (
	"fmt"
)

// Pwd prints the working directory.
func Pwd(p *Proc) int {
	cmd := &SimpleCommand{
		Use:   "pwd",
		Short: "Print the name of the current working directory.",
	}

	return cmd.Run(p, func() int {
		fmt.Fprintln(p.Stdout, p.Shell.Getwd())
		return 0
	})
}

var _ BuiltinFunc = Pwd

func init() {
	addBuiltin("pwd", "Print the name of the current working directory.", Pwd)
}
