package main

import (
	"os"

	"github.com/satishbabariya/querykit/cli/commands"
)

func main() {
	os.Exit(commands.Execute())
}
