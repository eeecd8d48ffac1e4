package logger

import "os"

// isTerminal reports whether f is attached to a character device. Pipes
// and regular files report false, which disables color.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
