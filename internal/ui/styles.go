package ui

import "fmt"

// ANSI256 color codes.
const (
	colorKey   = 74  // blue
	colorType  = 245 // medium gray
	colorOK    = 71  // green
	colorError = 167 // red
)

var noColor bool

func render(code int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", code, s)
}

// RenderKey returns s styled as an attribute key.
func RenderKey(s string) string { return render(colorKey, s) }

// RenderType returns s styled as a datatype tag.
func RenderType(s string) string { return render(colorType, s) }

// RenderOK returns s in the success color.
func RenderOK(s string) string { return render(colorOK, s) }

// RenderError returns s in the error color.
func RenderError(s string) string { return render(colorError, s) }

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
