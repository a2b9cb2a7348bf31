package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ShouldUseColor returns true when ANSI colors should be used on stdout.
// It respects NO_COLOR, CLICOLOR_FORCE, CLICOLOR, and TTY detection.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR_FORCE")) == "1" {
		return true
	}
	if strings.TrimSpace(os.Getenv("CLICOLOR")) == "0" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// Progress rewrites a single status line on a terminal. On anything else
// every update is printed on its own line.
type Progress struct {
	w     io.Writer
	tty   bool
	width int
}

// NewProgress returns a Progress writing to f.
func NewProgress(f *os.File) *Progress {
	p := &Progress{w: f, tty: term.IsTerminal(int(f.Fd()))}
	if p.tty {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = w
		}
	}
	return p
}

// Update replaces the status line with msg.
func (p *Progress) Update(msg string) {
	if !p.tty {
		fmt.Fprintln(p.w, msg)
		return
	}
	if p.width > 1 && len(msg) >= p.width {
		msg = msg[:p.width-1]
	}
	fmt.Fprintf(p.w, "\r\x1b[K%s", msg)
}

// Done ends the status line.
func (p *Progress) Done() {
	if p.tty {
		fmt.Fprintln(p.w)
	}
}
