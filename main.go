// The main package for the marketmirror executable.
package main

import (
	"github.com/lokatools/marketmirror/cmd"
)

func main() {
	cmd.Execute()
}
