package sink

import (
	"os"

	"golang.org/x/term"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorBlue    = "\x1b[34m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[37m"
	colorGray    = "\x1b[90m"
)

var vuPalette = []string{colorRed, colorGreen, colorYellow, colorBlue, colorMagenta, colorCyan}

// StdoutIsTerminal reports whether os.Stdout is attached to a terminal.
func StdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func outcomeColor(outcome string) string {
	switch outcome {
	case "success":
		return colorGreen
	case "timeout":
		return colorMagenta
	default:
		return colorRed
	}
}
