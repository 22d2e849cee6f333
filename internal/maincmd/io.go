package maincmd

import (
	"os"

	"github.com/mna/mainer"
)

func readSource(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// stdioFd reports the file descriptor backing stdio's Stdin, when it is a
// real *os.File, for go-isatty's terminal check. Anything else (a test's
// in-memory reader, a pipe wrapper) is treated as non-interactive.
func stdioFd(stdio mainer.Stdio) uintptr {
	f, ok := stdio.Stdin.(*os.File)
	if !ok {
		return ^uintptr(0)
	}
	return f.Fd()
}
