// Package main is the entry point for the sitepipe CLI.
package main

import (
	"os"

	"github.com/AndreyAkinshin/sitepipe/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
