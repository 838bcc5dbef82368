package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	cyan   = color.New(color.FgCyan)
	gray   = color.New(color.FgHiBlack)
)

// Status lines go to stderr so stdout carries only generated text.

func infof(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, cyan.Sprint("→")+" "+format+"\n", a...)
}

func successf(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, green.Sprint("✓")+" "+format+"\n", a...)
}

func warnf(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, yellow.Sprint("⚠")+" "+format+"\n", a...)
}

func errorf(w io.Writer, format string, a ...any) {
	fmt.Fprintf(w, red.Sprint("✗")+" "+format+"\n", a...)
}

func prompt(w io.Writer, label string) {
	fmt.Fprint(w, gray.Sprintf("[%s] ", label)+"> ")
}
