package maincmd

import (
	"os"
	"strings"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/require"
)

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func stdio(in string) (mainer.Stdio, *strings.Builder, *strings.Builder) {
	var out, errOut strings.Builder
	return mainer.Stdio{
		Stdin:  strings.NewReader(in),
		Stdout: &out,
		Stderr: &errOut,
	}, &out, &errOut
}

func TestHelpPrintsUsageAndSucceeds(t *testing.T) {
	c := Cmd{}
	s, out, _ := stdio("")
	code := c.Main([]string{"loxvm", "--help"}, s)
	require.Equal(t, mainer.Success, code)
	require.Contains(t, out.String(), "usage: loxvm")
}

func TestVersionPrintsBuildInfoAndSucceeds(t *testing.T) {
	c := Cmd{BuildVersion: "1.2.3", BuildDate: "2026-01-01"}
	s, out, _ := stdio("")
	code := c.Main([]string{"loxvm", "--version"}, s)
	require.Equal(t, mainer.Success, code)
	require.Contains(t, out.String(), "1.2.3")
	require.Contains(t, out.String(), "2026-01-01")
}

func TestTooManyArgsIsUsageError(t *testing.T) {
	c := Cmd{}
	s, _, errOut := stdio("")
	code := c.Main([]string{"loxvm", "a.lox", "b.lox"}, s)
	require.Equal(t, ExitUsage, code)
	require.NotEmpty(t, errOut.String())
}

func TestRunningMissingFileIsIOError(t *testing.T) {
	c := Cmd{}
	s, _, errOut := stdio("")
	code := c.Main([]string{"loxvm", "/no/such/file.lox"}, s)
	require.Equal(t, ExitIOError, code)
	require.Contains(t, errOut.String(), "Could not open file")
}

func TestReplEchoesPrintStatementsUntilEOF(t *testing.T) {
	c := Cmd{}
	s, out, _ := stdio("print 1 + 2;\nprint 3 * 4;\n")
	code := c.Main([]string{"loxvm"}, s)
	require.Equal(t, mainer.Success, code)
	require.Contains(t, out.String(), "3\n")
	require.Contains(t, out.String(), "12\n")
}

func TestReplReportsCompileErrorsAndContinues(t *testing.T) {
	c := Cmd{}
	s, out, errOut := stdio("1 + ;\nprint 5;\n")
	code := c.Main([]string{"loxvm"}, s)
	require.Equal(t, mainer.Success, code)
	require.NotEmpty(t, errOut.String())
	require.Contains(t, out.String(), "5\n")
}

func TestReplVerboseReportsSortedGlobalsWithValues(t *testing.T) {
	c := Cmd{Verbose: true}
	s, out, _ := stdio("var zebra = 1;\nvar apple = 2;\n")
	code := c.Main([]string{"loxvm", "--verbose"}, s)
	require.Equal(t, mainer.Success, code)
	require.Regexp(t, `(?s)apple = 2.*zebra = 1`, out.String())
	require.Contains(t, out.String(), "interned strings")
}

func TestRunFileCompileErrorExitsWithCompileErrorCode(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.lox"
	require.NoError(t, writeFile(path, "1 + 2 = 3;"))

	c := Cmd{}
	s, _, errOut := stdio("")
	code := c.Main([]string{"loxvm", path}, s)
	require.Equal(t, ExitCompileError, code)
	require.NotEmpty(t, errOut.String())
}

func TestRunFileRuntimeErrorExitsWithRuntimeErrorCode(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.lox"
	require.NoError(t, writeFile(path, "print undefined_name;"))

	c := Cmd{}
	s, _, errOut := stdio("")
	code := c.Main([]string{"loxvm", path}, s)
	require.Equal(t, ExitRuntimeError, code)
	require.NotEmpty(t, errOut.String())
}

func TestRunFileDisassemblyFlagPrintsBytecode(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/ok.lox"
	require.NoError(t, writeFile(path, "print 1 + 2;"))

	c := Cmd{}
	s, out, _ := stdio("")
	code := c.Main([]string{"loxvm", "--disassembly", path}, s)
	require.Equal(t, mainer.Success, code)
	require.Contains(t, out.String(), "OP_RETURN")
	require.Contains(t, out.String(), "3\n")
}
