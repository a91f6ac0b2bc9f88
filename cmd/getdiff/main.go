package main

import (
	"fmt"
	"os"

	"github.com/owaldhammad/getdiff/internal/cmd"
	"github.com/owaldhammad/getdiff/internal/errkind"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(errkind.ExitCode(err))
	}
}
