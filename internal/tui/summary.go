package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Color palette.
const (
	ColorHeader  = lipgloss.Color("39")
	ColorLabel   = lipgloss.Color("245")
	ColorValue   = lipgloss.Color("255")
	ColorSuccess = lipgloss.Color("42")
	ColorError   = lipgloss.Color("196")
	ColorMuted   = lipgloss.Color("240")
	ColorBorder  = lipgloss.Color("63")
)

// printer formats counts with thousands separators.
//
//nolint:gochecknoglobals // Global printer is idiomatic for x/text/message usage.
var printer = message.NewPrinter(language.English)

// FormatCount formats n with thousands separators, e.g. 18248 as "18,248".
func FormatCount(n int) string {
	return printer.Sprintf("%d", n)
}

// Summary is the end-of-run report of a batch command.
type Summary struct {
	Title     string
	Total     int
	Succeeded int
	Failed    int
	Elapsed   time.Duration
	Output    string
}

// RenderSummary renders s as a bordered block.
func RenderSummary(s Summary) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(ColorHeader)
	labelStyle := lipgloss.NewStyle().Foreground(ColorLabel).Width(16)
	valueStyle := lipgloss.NewStyle().Foreground(ColorValue).Bold(true)
	okStyle := lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true)
	errStyle := lipgloss.NewStyle().Foreground(ColorError).Bold(true)

	row := func(label, value string, style lipgloss.Style) string {
		return labelStyle.Render(label) + style.Render(value)
	}

	failStyle := valueStyle
	if s.Failed > 0 {
		failStyle = errStyle
	}

	lines := []string{
		titleStyle.Render(s.Title),
		"",
		row("Items", FormatCount(s.Total), valueStyle),
		row("Succeeded", FormatCount(s.Succeeded), okStyle),
		row("Failed", FormatCount(s.Failed), failStyle),
		row("Total time", formatSeconds(s.Elapsed), valueStyle),
	}
	if s.Total > 0 {
		avg := s.Elapsed / time.Duration(s.Total)
		lines = append(lines, row("Avg per item", formatSeconds(avg), valueStyle))
	}
	if s.Output != "" {
		lines = append(lines, row("Saved to", s.Output, valueStyle))
	}

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1)
	return box.Render(strings.Join(lines, "\n"))
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}
