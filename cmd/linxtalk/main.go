// Package main is the entry point for the linxtalk CLI.
package main

import "github.com/linxtalk/linxtalk-cli/internal/cli"

func main() {
	cli.Execute()
}
