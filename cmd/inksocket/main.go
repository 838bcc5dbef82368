// Package main implements the inksocket CLI.
// It streams completions and rewrites from a writing-assistant backend.
package main

import "github.com/chrisboulton/inksocket-go/cmd/inksocket/cmd"

func main() {
	cmd.Execute()
}
