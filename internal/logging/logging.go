// Package logging builds the structured loggers shared by every component.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// New creates the root logger writing to w (os.Stderr when nil) at the given
// level name. Unknown level names fall back to info.
func New(w io.Writer, level string) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	l := log.NewWithOptions(w, log.Options{ReportTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	l.SetLevel(lvl)
	return l
}

// Component returns a child logger prefixed with the component name, e.g. "[Orchestrator]".
func Component(l *log.Logger, name string) *log.Logger {
	if l == nil {
		l = Discard()
	}
	return l.WithPrefix("[" + name + "]")
}

// Discard returns a logger that writes nowhere, for tests and optional wiring.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
