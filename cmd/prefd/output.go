package main

import (
	"fmt"
	"os"
)

// ANSI escape codes for terminal output; --no-color disables them.
const (
	ansiReset  = "\033[0m"
	ansiBold   = "\033[1m"
	ansiDim    = "\033[2m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
)

func paint(code, text string) string {
	if noColor {
		return text
	}
	return code + text + ansiReset
}

// Outcome messages go to stderr so stdout stays clean for value output
// (pipelines read `prefd get` and `prefd list` output directly).

func successf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", paint(ansiGreen, "ok:"), fmt.Sprintf(format, args...))
}

func failf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", paint(ansiRed, "error:"), fmt.Sprintf(format, args...))
}

func warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", paint(ansiYellow, "warning:"), fmt.Sprintf(format, args...))
}

func notef(format string, args ...any) {
	fmt.Fprintln(os.Stderr, paint(ansiDim, fmt.Sprintf(format, args...)))
}

// statusRow prints one label/value line of `prefd status` output.
func statusRow(label, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "  %s %s\n", paint(ansiBold, label+":"), fmt.Sprintf(format, args...))
}

// settingLine prints a key with its encoded value, the shape shared by
// `list` and `config show`.
func settingLine(key, value string) {
	fmt.Printf("%s = %s\n", paint(ansiBold, key), value)
}

// eventLine prints one change from the watch stream.
func eventLine(key, value string, deleted bool) {
	if deleted {
		fmt.Printf("%s %s\n", paint(ansiRed, "deleted"), key)
		return
	}
	fmt.Printf("%s %s = %s\n", paint(ansiGreen, "changed"), key, value)
}
