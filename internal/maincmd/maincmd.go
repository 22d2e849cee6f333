// Package maincmd implements the loxvm command-line driver: flag parsing,
// REPL vs. file dispatch, and the sysexits-style exit codes the toolchain
// reports to its caller. It is built on github.com/mna/mainer's Stdio/
// ExitCode harness so the dispatch logic can be driven in tests against
// in-memory Stdin/Stdout/Stderr instead of the real process streams.
package maincmd

import (
	"bufio"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/mna/mainer"
	"github.com/ncruces/go-strftime"

	"loxvm/internal/compiler"
	"loxvm/internal/intern"
	"loxvm/internal/value"
	"loxvm/internal/vm"
)

const binName = "loxvm"

var (
	shortUsage = fmt.Sprintf(`usage: %s [<option>...] [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

With no <path>, starts an interactive REPL reading from stdin. With one
<path>, compiles and runs that file.

Valid flag options are:
       -h --help          Show this help and exit.
       -v --version       Print version and exit.
       --disassembly      Print bytecode disassembly before running.
       --verbose          Print a session banner and a sorted globals
                          dump after each REPL line.
`, binName)
)

// Exit codes follow the sysexits.h convention the original interpreter's C
// driver used (exit(64)/exit(65)/exit(70)/exit(74)); mainer.ExitCode is a
// plain int underlying type so we can declare our own typed constants
// rather than reusing mainer's generic Failure/InvalidArgs values;
// mainer.Success still covers exit status 0.
const (
	ExitUsage        mainer.ExitCode = 64
	ExitCompileError mainer.ExitCode = 65
	ExitRuntimeError mainer.ExitCode = 70
	ExitIOError      mainer.ExitCode = 74
)

// Cmd holds the parsed command-line flags and positional arguments for one
// invocation of the loxvm driver.
type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help        bool `flag:"h,help"`
	Version     bool `flag:"v,version"`
	Disassembly bool `flag:"disassembly"`
	Verbose     bool `flag:"verbose"`

	args  []string
	flags map[string]bool
}

func (c *Cmd) SetArgs(args []string)          { c.args = args }
func (c *Cmd) SetFlags(flags map[string]bool) { c.flags = flags }

// Validate enforces loxvm's dispatch shape: zero positional arguments opens
// the REPL, one runs that file, and anything else is a usage error.
func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}
	if len(c.args) > 1 {
		return errors.New("at most one script path may be given")
	}
	return nil
}

// Main parses args against c and dispatches to the REPL or the file runner,
// returning the exit code the process should report.
func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return ExitUsage
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success
	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	if len(c.args) == 0 {
		return c.repl(stdio)
	}
	return c.runFile(stdio, c.args[0])
}

// disassembleIfRequested compiles source a second time purely to render its
// bytecode when --disassembly is set; compilation is cheap and side-effect
// free, so paying for it twice keeps the VM's Interpret entry point the
// single source of truth for execution.
func (c *Cmd) disassembleIfRequested(stdio mainer.Stdio, name, source string) {
	if !c.Disassembly {
		return
	}
	ch, _, errs := compiler.Compile(source, intern.New(), nil)
	if len(errs) > 0 {
		return
	}
	ch.Disassemble(stdio.Stdout, name)
}

func (c *Cmd) runFile(stdio mainer.Stdio, path string) mainer.ExitCode {
	source, err := readSource(path)
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "Could not open file \"%s\".\n", path)
		return ExitIOError
	}

	c.disassembleIfRequested(stdio, path, source)

	machine := vm.New()
	machine.Stdout = stdio.Stdout
	result, errs := machine.Interpret(source)
	for _, msg := range errs {
		fmt.Fprintln(stdio.Stderr, msg)
	}
	switch result {
	case vm.CompileError:
		return ExitCompileError
	case vm.RuntimeError:
		return ExitRuntimeError
	}
	return mainer.Success
}

func (c *Cmd) repl(stdio mainer.Stdio) mainer.ExitCode {
	sessionID := uuid.New().String()
	interactive := isatty.IsTerminal(stdioFd(stdio))

	if interactive || c.Verbose {
		fmt.Fprintf(stdio.Stdout, "loxvm %s %s\n", c.BuildVersion, c.BuildDate)
	}
	if c.Verbose {
		banner := strftime.Format("%Y-%m-%d %H:%M:%S", time.Now())
		fmt.Fprintf(stdio.Stdout, "session %s started %s\n", sessionID, banner)
	}

	machine := vm.New()
	machine.Stdout = stdio.Stdout
	scanner := bufio.NewScanner(stdio.Stdin)

	for {
		if interactive {
			fmt.Fprint(stdio.Stdout, "> ")
		}
		if !scanner.Scan() {
			fmt.Fprintln(stdio.Stdout, "\nExit Repl")
			return mainer.Success
		}
		line := scanner.Text()

		c.disassembleIfRequested(stdio, "REPL", line)

		result, errs := machine.Interpret(line)
		for _, msg := range errs {
			fmt.Fprintln(stdio.Stderr, msg)
		}
		_ = result // a REPL line's failure is reported but never ends the session

		if c.Verbose {
			for _, name := range machine.GlobalNames() {
				v, _ := machine.Global(name)
				fmt.Fprintf(stdio.Stdout, "  %s = %s\n", name, value.Display(v))
			}
			fmt.Fprintf(stdio.Stdout, "  %s interned strings\n", humanize.Comma(int64(machine.InternedStrings())))
		}
	}
}
