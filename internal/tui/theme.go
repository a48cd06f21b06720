package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// sessionhold sky blue theme
var (
	// Primary colors - Sky blue palette
	SkyBlue      = lipgloss.Color("#87CEEB")
	DeepSkyBlue  = lipgloss.Color("#00BFFF")
	LightSkyBlue = lipgloss.Color("#B0E0E6")
	DarkSkyBlue  = lipgloss.Color("#4A90D9")
	CyanAccent   = lipgloss.Color("#00CED1")

	// Neutral colors
	White     = lipgloss.Color("#FFFFFF")
	LightGray = lipgloss.Color("#B0B0B0")
	DarkGray  = lipgloss.Color("#404040")

	// Status colors
	Success = lipgloss.Color("#00FF88")
	Warning = lipgloss.Color("#FFD700")
	Error   = lipgloss.Color("#FF6B6B")
	Info    = lipgloss.Color("#87CEEB")

	// Styles
	TitleStyle = lipgloss.NewStyle().
			Foreground(White).
			Background(DarkSkyBlue).
			Bold(true).
			Padding(0, 2)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(LightSkyBlue).
			Bold(true)

	LogoStyle = lipgloss.NewStyle().
			Foreground(DeepSkyBlue).
			Bold(true)

	BorderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(SkyBlue).
			Padding(1, 2)

	LabelStyle = lipgloss.NewStyle().
			Foreground(LightSkyBlue)

	ValueStyle = lipgloss.NewStyle().
			Foreground(White).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(Success).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(Warning)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	InfoStyle = lipgloss.NewStyle().
			Foreground(Info)

	DimStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	HighlightStyle = lipgloss.NewStyle().
			Foreground(CyanAccent).
			Bold(true)

	ProgressBarStyle = lipgloss.NewStyle().
				Foreground(DeepSkyBlue)

	ProgressEmptyStyle = lipgloss.NewStyle().
				Foreground(DarkGray)

	HelpStyle = lipgloss.NewStyle().
			Foreground(LightGray)

	// Table cells
	HeaderCellStyle = lipgloss.NewStyle().
			Foreground(LightSkyBlue).
			Bold(true).
			Padding(0, 1)

	CellStyle = lipgloss.NewStyle().
			Foreground(White).
			Padding(0, 1)
)

// MiniLogo returns the one-line logo
func MiniLogo() string {
	return LogoStyle.Render(Crosshair + " sessionhold")
}

// Divider returns a horizontal divider
func Divider(width int) string {
	return DimStyle.Render(strings.Repeat("─", width))
}

// ProgressBar renders a progress bar, percent in [0, 1]
func ProgressBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 1 {
		percent = 1
	}
	filled := int(float64(width) * percent)

	return ProgressBarStyle.Render(strings.Repeat("=", filled)) +
		ProgressEmptyStyle.Render(strings.Repeat("-", width-filled))
}

// Bullet points
const (
	BulletPoint = "●"
	CheckMark   = "✓"
	CrossMark   = "✗"
	Crosshair   = "⌖"
	Pending     = "○"
)
