package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/buildloop/buildloop/internal/domain"
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorSecondary)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	OutlierStyle = lipgloss.NewStyle().
			Foreground(ColorOutlier).
			Bold(true)

	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			Padding(0, 0, 1, 0)
)

// Readiness styles
var (
	ReadyStyle = lipgloss.NewStyle().
			Foreground(ColorReady)

	UnavailableStyle = lipgloss.NewStyle().
				Foreground(ColorUnavailable)

	UnconfiguredStyle = lipgloss.NewStyle().
				Foreground(ColorUnconfigured)
)

// Error style
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorError).
	Bold(true)

// ReadinessLabel renders the readiness of a provider
func ReadinessLabel(a domain.Availability) string {
	switch {
	case a.Ready():
		return ReadyStyle.Render("ready")
	case a.Available:
		return UnconfiguredStyle.Render("not configured")
	default:
		return UnavailableStyle.Render("unavailable")
	}
}

// OutcomeStyle returns the style of a session status
func OutcomeStyle(status domain.SessionStatus) lipgloss.Style {
	switch status {
	case domain.SessionCompleted:
		return lipgloss.NewStyle().Foreground(ColorCompleted)
	case domain.SessionFailed:
		return lipgloss.NewStyle().Foreground(ColorFailed)
	default:
		return MutedStyle
	}
}
