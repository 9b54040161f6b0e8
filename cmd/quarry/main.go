// Command quarry compiles YAML queries over CUE table schemas to SQL.
package main

import (
	"os"

	"github.com/roach88/quarry/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(cli.GetExitCode(err))
	}
}
