// Command tandem drives the conversation sync client from the shell.
package main

import (
	"os"

	"github.com/roach88/tandem/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
