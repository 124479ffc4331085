package main

import (
	"os"

	"github.com/josephlewis42/flexsh/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
