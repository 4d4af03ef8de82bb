package ui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// UI handles operator interaction. Prompts are synchronous checkpoints: the
// pipeline does not advance past a destructive step without an answer. On a
// non-interactive stdin (or with assumeYes) every prompt answers its stated
// default.
type UI struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

var (
	warnColor    = color.New(color.FgYellow, color.Bold)
	dangerColor  = color.New(color.FgRed, color.Bold)
	successColor = color.New(color.FgGreen)
)

// New returns a UI on stdin/stdout. assumeYes forces default answers even on
// a terminal.
func New(assumeYes bool) *UI {
	return &UI{
		in:          bufio.NewReader(os.Stdin),
		out:         os.Stdout,
		interactive: !assumeYes && isatty.IsTerminal(os.Stdin.Fd()),
	}
}

// NewWith builds a UI over arbitrary streams, for tests.
func NewWith(in io.Reader, out io.Writer) *UI {
	return &UI{in: bufio.NewReader(in), out: out, interactive: true}
}

func (u *UI) Printf(format string, a ...any)  { fmt.Fprintf(u.out, format, a...) }
func (u *UI) Println(a ...any)                { fmt.Fprintln(u.out, a...) }
func (u *UI) Warnf(format string, a ...any)   { warnColor.Fprintf(u.out, format, a...) }
func (u *UI) Dangerf(format string, a ...any) { dangerColor.Fprintf(u.out, format, a...) }
func (u *UI) Successf(format string, a ...any) {
	successColor.Fprintf(u.out, format, a...)
}

// Ask prompts for a free-text answer, returning def when the operator just
// hits enter or the session is non-interactive.
func (u *UI) Ask(prompt, def string) string {
	if !u.interactive {
		return def
	}
	if def != "" {
		fmt.Fprintf(u.out, "%s [%s]: ", prompt, def)
	} else {
		fmt.Fprintf(u.out, "%s: ", prompt)
	}
	line, err := u.in.ReadString('\n')
	if err != nil {
		return def
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

// Confirm asks a yes/no question with a stated default.
func (u *UI) Confirm(prompt string, def bool) bool {
	if !u.interactive {
		return def
	}
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	fmt.Fprintf(u.out, "%s (%s): ", prompt, hint)
	line, err := u.in.ReadString('\n')
	if err != nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}
