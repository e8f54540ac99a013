package theme

import "github.com/charmbracelet/lipgloss"

// Color is an alias for lipgloss.Color for convenience
type Color = lipgloss.Color

// Brand colors
const (
	ColorPrimary   Color = "99" // Purple - titles
	ColorSecondary Color = "86" // Cyan - headers
)

// Provider readiness colors
const (
	ColorReady        Color = "2" // Green - available and configured
	ColorUnavailable  Color = "1" // Red - missing binary
	ColorUnconfigured Color = "3" // Yellow - installed, not configured
)

// Session outcome colors
const (
	ColorCompleted Color = "2" // Green
	ColorFailed    Color = "1" // Red
)

// UI semantic colors
const (
	ColorError   Color = "196" // Bright red
	ColorMuted   Color = "241" // Gray - secondary text
	ColorOutlier Color = "208" // Orange - metrics outliers
)
