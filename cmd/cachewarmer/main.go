// The main package for the cachewarmer executable.
package main

import (
	"github.com/JakeFAU/cache-warmer/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
