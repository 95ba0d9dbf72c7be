package output

import (
	"fmt"
	"os"
	"strings"

	"github.com/tanq16/splitget/internal/utils"
	"golang.org/x/term"
)

// ProgressBar renders a fixed-width bar with the completed percentage.
func ProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	current = max(0, min(current, total))
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"]
	bar += strings.Repeat(StyleSymbols["hline"], filled)
	bar += strings.Repeat(" ", width-filled)
	bar += StyleSymbols["bullet"]
	return fmt.Sprintf("%s %5.1f%%", bar, percent*100)
}

// progressDetail is the "done / total • speed" suffix of a segment line.
func progressDetail(current, total int64, elapsed float64) string {
	return fmt.Sprintf("%s / %s %s %s",
		utils.FormatBytes(uint64(max(current, 0))),
		utils.FormatBytes(uint64(max(total, 0))),
		StyleSymbols["bullet"],
		utils.FormatSpeed(current, elapsed),
	)
}

func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func getTerminalHeight() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height <= 0 {
		return 24 // Default fallback height
	}
	return height
}
