// Package logging provides the small colored-prefix logger used across the
// core and the CLI. It wraps the standard library's log.Logger the way every
// repo in this corpus does logging — nothing fancier than that, just color.
package logging

import (
	"fmt"
	"log"
	"os"

	"github.com/mitchellh/colorstring"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

// Warnf prints a yellow-prefixed warning line. Used for recoverable,
// user-visible conditions such as a partition named on --partitions that
// doesn't exist in the manifest.
func Warnf(format string, args ...any) {
	std.Print(colorstring.Color("[yellow]WARN[reset] ") + fmt.Sprintf(format, args...))
}

// Errorf prints a red-prefixed error line. Used for per-partition failures
// that don't abort the whole run.
func Errorf(format string, args ...any) {
	std.Print(colorstring.Color("[red]ERROR[reset] ") + fmt.Sprintf(format, args...))
}

// Infof prints a plain informational line.
func Infof(format string, args ...any) {
	std.Print(fmt.Sprintf(format, args...))
}
