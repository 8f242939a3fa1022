// The main package for the sejmaudit executable.
package main

import (
	"github.com/sejmwatch/sejmaudit/cmd"
)

func main() {
	cmd.Execute()
}
