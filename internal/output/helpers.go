package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tanq16/vdl/internal/types"
	"golang.org/x/term"
)

func progressBar(current, total int64, width int) string {
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
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// terminalHeight falls back to 24 rows when w is not a terminal.
func terminalHeight(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if _, h, err := term.GetSize(int(f.Fd())); err == nil && h > 0 {
			return h
		}
	}
	return 24
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func statusIndicator(status types.Status) string {
	switch status {
	case types.StatusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case types.StatusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case types.StatusCanceled:
		return warningStyle.Render(StyleSymbols["warning"])
	case types.StatusPause:
		return warningStyle.Render(StyleSymbols["pause"])
	default:
		return pendingStyle.Render(StyleSymbols["pending"])
	}
}

func styleMessage(status types.Status, msg string) string {
	switch status {
	case types.StatusSuccess:
		return successStyle.Render(msg)
	case types.StatusError:
		return errorStyle.Render(msg)
	case types.StatusPause, types.StatusCanceled:
		return warningStyle.Render(msg)
	default:
		return pendingStyle.Render(msg)
	}
}
