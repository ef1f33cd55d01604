// The main package for the matchweek-ingest executable.
package main

import (
	"github.com/JakeFAU/matchweek-ingest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
