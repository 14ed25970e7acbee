package styles

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
)

// Symbols
const (
	SymbolSuccess  = "✓"
	SymbolWarning  = "⚠"
	SymbolError    = "✗"
	SymbolSelected = "●"
	SymbolFree     = "○"
	SymbolAsc      = "▲"
	SymbolDesc     = "▼"
)

var forceNoColor atomic.Bool

// SetNoColor disables colors for the rest of the process (--no-color).
func SetNoColor(v bool) {
	forceNoColor.Store(v)
}

// NoColor checks if colors should be disabled
func NoColor() bool {
	return forceNoColor.Load() || os.Getenv("NO_COLOR") != "" || os.Getenv("GRIDSYNC_NO_COLOR") != ""
}

// IsAccessible checks if accessibility mode is enabled
// When enabled: no animations, no spinner, simplified output
func IsAccessible() bool {
	v := os.Getenv("GRIDSYNC_ACCESSIBLE")
	return v == "1" || v == "true"
}

// Base text styles
var Bold = lipgloss.NewStyle().Bold(true)

var (
	SuccessStyle = lipgloss.NewStyle().Foreground(Success)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error)
	WarningStyle = lipgloss.NewStyle().Foreground(Warning)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)

	// Table
	TitleStyle        = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	HeaderStyle       = lipgloss.NewStyle().Bold(true).Foreground(ColorHeader)
	HeaderCursorStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent).Underline(true)
	CursorRowStyle    = lipgloss.NewStyle().Background(BgHighlight).Foreground(TextPrimary)
	CursorCellStyle   = lipgloss.NewStyle().Background(Accent).Foreground(lipgloss.Color("#000000"))
	SelectedRowStyle  = lipgloss.NewStyle().Background(ColorSelection)
	FilterStyle       = lipgloss.NewStyle().Foreground(ColorFilter)

	// Dialogs
	DialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorDanger).
			Padding(0, 2)

	HelpKey = lipgloss.NewStyle().Foreground(Accent)
)

// ═══════════════════════════════════════════════════════════════════════════
// Render functions - centralized formatting with NoColor support
// ═══════════════════════════════════════════════════════════════════════════

// Render applies a style if colors are enabled
func Render(s lipgloss.Style, text string) string {
	if NoColor() {
		return text
	}
	return s.Render(text)
}

// SortMarker returns the header suffix for a sorted column.
func SortMarker(desc bool) string {
	if desc {
		return SymbolDesc
	}
	return SymbolAsc
}

// Checkbox renders a selection marker.
func Checkbox(on bool) string {
	if on {
		return Render(FilterStyle, SymbolSelected)
	}
	return Render(MutedStyle, SymbolFree)
}

// ═══════════════════════════════════════════════════════════════════════════
// Message formatters - structured output
// ═══════════════════════════════════════════════════════════════════════════

// SuccessMsg formats a success message with checkmark
func SuccessMsg(msg string) string {
	symbol := SymbolSuccess
	if NoColor() {
		symbol = "+"
	}
	return fmt.Sprintf("%s %s", Render(SuccessStyle, symbol), msg)
}

// ErrorMsg formats an error message
func ErrorMsg(title string) string {
	if NoColor() {
		return "Error: " + title
	}
	return Render(ErrorStyle, SymbolError+" Error: "+title)
}

// WarningMsg formats a warning message
func WarningMsg(msg string) string {
	symbol := SymbolWarning
	if NoColor() {
		symbol = "!"
	}
	return fmt.Sprintf("%s %s", Render(WarningStyle, symbol), msg)
}

// MutedMsg formats muted/secondary text
func MutedMsg(msg string) string {
	return Render(MutedStyle, msg)
}

// HelpBar renders "key desc" pairs on one line.
func HelpBar(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, Render(HelpKey, pairs[i])+" "+Render(MutedStyle, pairs[i+1]))
	}
	return strings.Join(parts, "  ")
}

// Mute renders s in the secondary text color.
func Mute(s string) string { return Render(MutedStyle, s) }
