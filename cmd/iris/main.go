// Package main is the single-binary entrypoint for the Iris coordinator.
package main

import "github.com/iris-network/iris/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
