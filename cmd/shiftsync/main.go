// Command shiftsync runs and controls the WFM to team shifts sync engine.
package main

import (
	"context"
	"os"

	"github.com/roach88/shiftsync/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
