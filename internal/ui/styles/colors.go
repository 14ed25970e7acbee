package styles

import "github.com/charmbracelet/lipgloss"

// Palette, dark mode first.
var (
	Accent  = lipgloss.Color("#7C3AED") // violet-500 - cursor, interactive
	Success = lipgloss.Color("#10B981") // emerald-500
	Warning = lipgloss.Color("#F59E0B") // amber-500 - stale data, out of range
	Error   = lipgloss.Color("#EF4444") // red-500
	Info    = lipgloss.Color("#3B82F6") // blue-500 - headers, ids
	Muted   = lipgloss.Color("#6B7280") // gray-500

	TextPrimary = lipgloss.Color("#F9FAFB") // gray-50
	BgHighlight = lipgloss.Color("#1F2937") // gray-800 - cursor row
	BgSelected  = lipgloss.Color("#312E81") // indigo-900 - selected rows
)

// Semantic aliases used by the table views.
var (
	ColorHeader    = Info
	ColorFilter    = Success
	ColorDanger    = Error
	ColorSelection = BgSelected
)
