package main

import (
	"os"

	"github.com/go-go-golems/socratic/cmd/socratic/cmds"
)

var version = "dev"

func main() {
	if err := cmds.NewRootCommand(version).Execute(); err != nil {
		os.Exit(1)
	}
}
