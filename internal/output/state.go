package output

import (
	"github.com/fatih/color"

	"vfs-go/internal/cms"
)

var (
	newColor     = color.New(color.FgGreen)
	changedColor = color.New(color.FgYellow)
	deletedColor = color.New(color.FgRed)
	dimColor     = color.New(color.Faint)
	headerColor  = color.New(color.Bold)
)

// SetColor turns ANSI escapes on or off for everything this package prints.
// By default color is enabled only when stdout is a terminal.
func SetColor(enabled bool) {
	color.NoColor = !enabled
}

// StateMarker returns the one-character marker for a resource state,
// colored when color output is enabled.
func StateMarker(s cms.State) string {
	switch s {
	case cms.StateNew:
		return newColor.Sprint("+")
	case cms.StateChanged:
		return changedColor.Sprint("~")
	case cms.StateDeleted:
		return deletedColor.Sprint("-")
	default:
		return " "
	}
}

// Dim renders secondary text.
func Dim(text string) string {
	return dimColor.Sprint(text)
}

// Error renders text in the error color.
func Error(text string) string {
	return deletedColor.Sprint(text)
}
