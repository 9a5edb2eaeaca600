// Package main provides the entry point for the storyforge CLI.
package main

import (
	"os"

	"github.com/randalmurphal/storyforge/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
