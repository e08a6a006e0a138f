package main

import (
	"fmt"
	"os"

	"github.com/jungwonlee1988/wedealize-sub000/cmd/catalogctl/commands"
)

var version = "0.1.0"

func main() {
	commands.SetVersion(version)
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
