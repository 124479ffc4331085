package commands

import (
	"fmt"
)

// Clear clears the terminal screen.
func Clear(p *Proc) int {
	if isTerminal(p.Stdout) {
		// Assumes VT100 compatibility.
		fmt.Fprint(p.Stdout, "\033[H\033[2J")
	}
	return 0
}

var _ BuiltinFunc = Clear

func init() {
	addBuiltin("clear", "Clear the terminal screen.", Clear)
}
