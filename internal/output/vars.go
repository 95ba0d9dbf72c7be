package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))            // dark green
	success2Style = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))             // green
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))            // blue
	infoStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))            // cyan
	debugStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))           // light grey
	detailStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))            // purple
	streamStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))           // grey
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

var StyleSymbols = map[string]string{
	"pass":    "✓",
	"fail":    "✗",
	"warning": "!",
	"pending": "◉",
	"info":    "ℹ",
	"arrow":   "→",
	"bullet":  "•",
	"dot":     "·",
	"hline":   "━",
}

// Out receives everything the Print helpers write.
var Out io.Writer = os.Stdout

func PrintSuccess(text string) {
	fmt.Fprintln(Out, successStyle.Render(text))
}
func PrintError(text string) {
	fmt.Fprintln(Out, errorStyle.Render(text))
}
func PrintWarning(text string) {
	fmt.Fprintln(Out, warningStyle.Render(text))
}
func PrintHeader(text string) {
	fmt.Fprintln(Out, headerStyle.Render(text))
}

// PrintDetail prints an indented "key → value" line.
func PrintDetail(key, value string) {
	fmt.Fprintf(Out, "  %s %s %s\n", detailStyle.Render(key), debugStyle.Render(StyleSymbols["arrow"]), value)
}

func FSuccess(text string) string {
	return successStyle.Render(text)
}
func FWarning(text string) string {
	return warningStyle.Render(text)
}
func FPending(text string) string {
	return pendingStyle.Render(text)
}
func FInfo(text string) string {
	return infoStyle.Render(text)
}
func FDebug(text string) string {
	return debugStyle.Render(text)
}
