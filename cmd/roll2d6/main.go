// Command roll2d6 loads roll2d6 games and keeps a local replica in sync.
package main

import (
	"fmt"
	"os"

	"github.com/ericnething/roll2d6-client/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "roll2d6:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
