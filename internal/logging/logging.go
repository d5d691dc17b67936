// Package logging prints leveled, colored diagnostics for the CLI. Info and
// debug lines are opt-in; warnings and errors always go to stderr.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

type Logger struct {
	Verbose bool
	Debug   bool

	// Out and Err default to os.Stdout and os.Stderr.
	Out io.Writer
	Err io.Writer
}

// Discard is a logger that prints warnings and errors nowhere.
var Discard = &Logger{Out: io.Discard, Err: io.Discard}

func (l *Logger) out() io.Writer {
	if l == nil || l.Out == nil {
		return os.Stdout
	}
	return l.Out
}

func (l *Logger) err() io.Writer {
	if l == nil || l.Err == nil {
		return os.Stderr
	}
	return l.Err
}

func (l *Logger) Infof(msg string, args ...any) {
	if l != nil && l.Verbose {
		fmt.Fprintf(l.out(), color.GreenString("[info] ")+msg+"\n", args...)
	}
}

func (l *Logger) Debugf(msg string, args ...any) {
	if l != nil && l.Debug {
		fmt.Fprintf(l.out(), color.CyanString("[debug] ")+msg+"\n", args...)
	}
}

func (l *Logger) Warnf(msg string, args ...any) {
	fmt.Fprintf(l.err(), color.YellowString("[warn] ")+msg+"\n", args...)
}

func (l *Logger) Errorf(msg string, args ...any) {
	fmt.Fprintf(l.err(), color.RedString("[error] ")+msg+"\n", args...)
}
