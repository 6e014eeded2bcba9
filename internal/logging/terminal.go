package logging

import (
	"os"

	"github.com/mattn/go-isatty"
)

// isTerminal reports whether f looks like an interactive terminal,
// including a Cygwin/MSYS pty on Windows, which os.ModeCharDevice alone
// does not detect.
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
