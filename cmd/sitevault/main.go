package main

import (
	"fmt"
	"os"

	"github.com/sitevault/sitevault/internal/cli"
	"github.com/sitevault/sitevault/internal/util"
)

func main() {
	// Handle panics gracefully
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(util.ExitError)
		}
	}()

	os.Exit(util.HandleError(os.Stderr, cli.Execute()))
}
