// Command loxvm compiles and runs loxvm source: with no arguments it opens
// a REPL on stdin, with one argument it runs that file, and it reports
// compile and runtime failures with the sysexits-style exit codes used by
// the toolchain this implementation is grounded on.
package main

import (
	"os"

	"github.com/mna/mainer"

	"loxvm/internal/maincmd"
)

var (
	// placeholder values, replaced on build
	version   = "{v}"
	buildDate = "{d}"
)

func main() {
	c := maincmd.Cmd{BuildVersion: version, BuildDate: buildDate}
	os.Exit(int(c.Main(os.Args, mainer.CurrentStdio())))
}
