package commands

import (
	"fmt"
	"strconv"

	"github.com/josephlewis42/flexsh/core/executor"
)

// Exit ends the session with the given status, or 0. Arguments aren't parsed
// as flags so negative codes work.
func Exit(p *Proc) int {
	args := p.Args[1:]
	code := 0

	switch len(args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(p.Stderr, "%s: %s: numeric argument required\n", p.Args[0], args[0])
			code = executor.ExitUsage
		} else {
			code = n & 0xff
		}
	default:
		fmt.Fprintf(p.Stderr, "%s: too many arguments\n", p.Args[0])
		return 1
	}

	p.Shell.Exit(code)
	return code
}

var _ BuiltinFunc = Exit

func init() {
	addBuiltin("exit", "Exit the shell.", Exit)
}
