package doctor

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	styleHeader  = lipgloss.NewStyle().Bold(true)
	styleOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#22c55e"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("#eab308"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444"))
	styleDim     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	styleFix     = lipgloss.NewStyle().Foreground(lipgloss.Color("#8b5cf6"))
)

// Output handles formatted output for the doctor command
type Output struct {
	writer    io.Writer
	useColors bool
}

// NewOutput creates a new Output instance
func NewOutput(w io.Writer, useColors bool) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{
		writer:    w,
		useColors: useColors,
	}
}

// Header prints the doctor header
func (o *Output) Header() {
	o.println("")
	o.println(o.style(styleHeader, "rccstake doctor"))
	o.println("")
}

// CheckStart prints the start of a check
func (o *Output) CheckStart(index, total int, name string) {
	o.printf("[%d/%d] Checking %s...\n", index, total, name)
}

// CheckResult prints the result of a check
func (o *Output) CheckResult(result CheckResult) {
	var icon string
	var style lipgloss.Style
	switch result.Status {
	case StatusOK:
		icon, style = "✓", styleOK
	case StatusWarning:
		icon, style = "!", styleWarning
	case StatusError:
		icon, style = "✗", styleError
	default:
		icon, style = "-", styleDim
	}

	o.printf("  %s %s\n", o.style(style, icon), result.Message)
	if result.Details != "" {
		o.printf("    %s\n", o.style(styleDim, result.Details))
	}
	if result.Status != StatusOK && result.FixCommand != "" {
		o.printf("    Fix: %s\n", o.style(styleFix, result.FixCommand))
	}
}

// Summary prints the summary at the end
func (o *Output) Summary(summary Summary) {
	o.println("")
	o.printf("Summary: %s, ", o.style(styleOK, fmt.Sprintf("%d passed", summary.Passed)))
	if summary.Failed > 0 {
		o.printf("%s", o.style(styleError, fmt.Sprintf("%d failed", summary.Failed)))
	} else {
		o.printf("0 failed")
	}
	if summary.Warned > 0 {
		o.printf(", %s", o.style(styleWarning, fmt.Sprintf("%d warnings", summary.Warned)))
	}
	if summary.Skipped > 0 {
		o.printf(", %d skipped", summary.Skipped)
	}
	o.println("")
}

func (o *Output) style(s lipgloss.Style, text string) string {
	if !o.useColors {
		return text
	}
	return s.Render(text)
}

func (o *Output) println(s string) {
	fmt.Fprintln(o.writer, s)
}

func (o *Output) printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}
