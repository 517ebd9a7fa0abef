package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	cyan    = lipgloss.Color("#00FFFF")
	magenta = lipgloss.Color("#FF00FF")
	green   = lipgloss.Color("#39FF14")
	yellow  = lipgloss.Color("#FFFF00")
	orange  = lipgloss.Color("#FF6700")
	red     = lipgloss.Color("#FF0000")
	dim     = lipgloss.Color("#B0B0B0")

	labelStyle     = lipgloss.NewStyle().Foreground(cyan).Bold(true)
	valueStyle     = lipgloss.NewStyle().Foreground(yellow)
	successStyle   = lipgloss.NewStyle().Foreground(green).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(red).Bold(true)
	warningStyle   = lipgloss.NewStyle().Foreground(orange).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(magenta).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(dim).Faint(true)
)

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	errOut  io.Writer = os.Stderr
	quiet   bool
	noColor bool
)

// SetQuietMode suppresses everything except errors
func SetQuietMode(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = enabled
}

// SetNoColor prints plain text without styles
func SetNoColor(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = enabled
}

// SetOutput redirects normal and error output. Nil keeps the current writer.
func SetOutput(stdout, stderr io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if stdout != nil {
		out = stdout
	}
	if stderr != nil {
		errOut = stderr
	}
}

func render(style lipgloss.Style, text string) string {
	if noColor {
		return text
	}
	return style.Render(text)
}

func write(w io.Writer, line string) {
	fmt.Fprintln(w, line)
}

func withDetail(msg string, args []interface{}) string {
	if len(args) > 0 {
		return msg + ": " + fmt.Sprintf("%v", args[0])
	}
	return msg
}

// PrintError prints an error message. Errors are shown even in quiet mode.
func PrintError(msg string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	write(errOut, render(errorStyle, withDetail(msg, args)))
}

// PrintSuccess prints a success message
func PrintSuccess(msg string) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return
	}
	write(out, render(successStyle, msg))
}

// PrintInfo prints a label and its value
func PrintInfo(label string, value string) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return
	}
	write(out, render(labelStyle, label)+": "+render(valueStyle, value))
}

// PrintWarning prints a warning message
func PrintWarning(msg string, args ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return
	}
	write(out, render(warningStyle, withDetail(msg, args)))
}

// PrintHighlight prints a section heading
func PrintHighlight(msg string) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return
	}
	write(out, render(highlightStyle, msg))
}

// PrintDim prints secondary text such as hints
func PrintDim(msg string) {
	mu.Lock()
	defer mu.Unlock()
	if quiet {
		return
	}
	write(out, render(dimStyle, msg))
}

// PrintRaw prints text unstyled. It is meant for machine readable output
// such as tokens and is never suppressed.
func PrintRaw(text string) {
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprint(out, text)
	if len(text) == 0 || text[len(text)-1] != '\n' {
		fmt.Fprintln(out)
	}
}
