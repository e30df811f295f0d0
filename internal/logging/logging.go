// Package logging provides the tagged console logger used by daforfer.
//
// Informational lines go to the error stream so that stdout stays free for
// command output. Debug lines are only written in verbose mode.
package logging

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

type Logger struct {
	out     io.Writer
	err     io.Writer
	verbose bool
}

// NewLogger builds a logger over the given streams
func NewLogger(out, err io.Writer, verbose bool) Logger {
	return Logger{
		out:     out,
		err:     err,
		verbose: verbose,
	}
}

// Discard returns a logger that writes nowhere
func Discard() Logger {
	return Logger{out: io.Discard, err: io.Discard}
}

func (l Logger) Out(f string, args ...interface{}) {
	fmt.Fprintf(l.out, f+"\n", args...)
}

func (l Logger) Info(tag string, f string, args ...interface{}) {
	print(l.err, color.New(color.FgHiGreen), tag, f, args...)
}

func (l Logger) Debug(tag string, f string, args ...interface{}) {
	if l.verbose {
		print(l.err, color.New(color.FgGreen), tag, f, args...)
	}
}

// Error writes a single-line error message
func (l Logger) Error(f string, args ...interface{}) {
	msg := strings.ReplaceAll(fmt.Sprintf(f, args...), "\n", " ")
	fmt.Fprintf(l.err, "%s %s\n", color.New(color.FgHiRed).Sprint("error:"), msg)
}

func print(w io.Writer, tagColor *color.Color, tag, f string, args ...interface{}) {
	str := fmt.Sprintf(f, args...)
	for _, line := range strings.Split(str, "\n") {
		fmt.Fprintf(w, "%s  %s\n",
			tagColor.Sprint(tag),
			color.WhiteString(line))
	}
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying the logger
func (l Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// Ctx returns the logger stored in ctx, or a discarding logger
func Ctx(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return Discard()
}
