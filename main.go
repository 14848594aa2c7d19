// ./main.go
package main

import (
	"github.com/embershell/embershell/cmd"
)

// main is the entry point for the embershell binary. Command-line parsing,
// configuration, and execution all live in the cmd package.
func main() {
	cmd.Execute()
}
