// Package ui renders CLI output.
package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/pterm/pterm"
)

var (
	// Out receives regular output.
	Out io.Writer = os.Stdout
	// Err receives errors.
	Err io.Writer = os.Stderr
)

// Palette
var (
	accent = lipgloss.Color("#00D9FF")
	green  = lipgloss.Color("#00FF88")
	amber  = lipgloss.Color("#FFB800")
	red    = lipgloss.Color("#FF4444")
	muted  = lipgloss.Color("#6C757D")
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(accent).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(green).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	warningStyle = lipgloss.NewStyle().Foreground(amber).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(accent)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)

	keyColor = color.New(color.FgCyan, color.Bold)
)

// SetOutput redirects regular and error output. Nil keeps the current writer.
func SetOutput(out, err io.Writer) {
	if out != nil {
		Out = out
	}
	if err != nil {
		Err = err
	}
}

// DisableColor turns off styling for non-interactive output.
func DisableColor() {
	color.NoColor = true
	pterm.DisableStyling()
}

func width() int {
	if w := pterm.GetTerminalWidth(); w > 0 && w < 120 {
		return w
	}
	return 80
}

// PrintHeader prints the command header.
func PrintHeader(title string, subtitle string) {
	header := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 2).
		Render(
			lipgloss.JoinVertical(
				lipgloss.Left,
				titleStyle.Render(title),
				mutedStyle.Render(subtitle),
			),
		)

	fmt.Fprintln(Out, header)
}

func message(w io.Writer, style lipgloss.Style, icon, format string, args []any) {
	fmt.Fprintln(w, style.Render(icon+" "+fmt.Sprintf(format, args...)))
}

// PrintSuccess prints a success message.
func PrintSuccess(format string, args ...any) { message(Out, successStyle, "✓", format, args) }

// PrintError prints an error message to Err.
func PrintError(format string, args ...any) { message(Err, errorStyle, "✗", format, args) }

// PrintWarning prints a warning.
func PrintWarning(format string, args ...any) { message(Out, warningStyle, "⚠", format, args) }

// PrintInfo prints an informational line.
func PrintInfo(format string, args ...any) { message(Out, infoStyle, "ℹ", format, args) }

// PrintSection prints a section header
func PrintSection(title string) {
	section := lipgloss.NewStyle().
		Width(width()).
		Border(lipgloss.NormalBorder(), false, false, true, false).
		BorderForeground(muted).
		Render(title)

	fmt.Fprintln(Out)
	fmt.Fprintln(Out, section)
}

// PrintTable prints a table using pterm
func PrintTable(headers []string, rows [][]string) error {
	tableData := pterm.TableData{headers}
	tableData = append(tableData, rows...)
	out, err := pterm.DefaultTable.WithHasHeader().WithData(tableData).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(Out, out)
	return nil
}

// PrintList prints a bulleted list
func PrintList(items []string) {
	for _, item := range items {
		fmt.Fprintf(Out, "  • %s\n", item)
	}
}

// PrintKeyValues prints sorted key/value pairs.
func PrintKeyValues(values map[string]any) {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(Out, "  %s = %v\n", keyColor.Sprint(k), values[k])
	}
}

// PrintMarkdown renders markdown content
func PrintMarkdown(content string) error {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width()),
	)
	if err != nil {
		return err
	}

	out, err := r.Render(content)
	if err != nil {
		return err
	}

	fmt.Fprint(Out, out)
	return nil
}

// PrintCodeBlock prints code in a styled block
func PrintCodeBlock(code string, language string) {
	codeStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(muted).
		Padding(0, 1).
		Width(width())

	if language != "" {
		fmt.Fprintln(Out, mutedStyle.Render(fmt.Sprintf(" %s ", language)))
	}
	fmt.Fprintln(Out, codeStyle.Render(code))
}

// PrintSpinner creates a spinner and returns it
func PrintSpinner(message string) (*pterm.SpinnerPrinter, error) {
	return pterm.DefaultSpinner.WithWriter(Err).WithRemoveWhenDone(true).Start(message)
}

// Cell formats a value for a table cell.
func Cell(v any) string {
	switch t := v.(type) {
	case nil:
		return mutedStyle.Render("NULL")
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	}
	s := fmt.Sprint(v)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + "…"
	}
	return s
}
