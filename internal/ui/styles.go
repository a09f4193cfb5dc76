package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Color palette
var (
	PrimaryColor = lipgloss.Color("#2E86DE") // Blue - headers, borders
	SuccessColor = lipgloss.Color("#43BF6D") // Green - new devices
	ErrorColor   = lipgloss.Color("#FF5555") // Red - abort, reject
	WarningColor = lipgloss.Color("#FFA500") // Orange - duplicates
	MutedColor   = lipgloss.Color("#626262") // Gray - secondary info
	TextColor    = lipgloss.Color("#FFFFFF") // White - main content
)

// Layout constants
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

// Shared styles
var (
	HeaderTitleStyle = lipgloss.NewStyle().
				Foreground(TextColor).
				Bold(true).
				PaddingLeft(2)

	HeaderCommandStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	HeaderParamKeyStyle = lipgloss.NewStyle().
				Foreground(MutedColor).
				PaddingLeft(2)

	HeaderParamValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	// StatusStyle renders status lines in the watch view
	StatusStyle = lipgloss.NewStyle().
			Foreground(TextColor).
			PaddingLeft(2)

	// SpinnerStyle colors the watch view spinner
	SpinnerStyle = lipgloss.NewStyle().
			Foreground(PrimaryColor)

	// PeerAddedStyle, PeerDuplicateStyle and PeerKnownStyle color one
	// line of the live peer list
	PeerAddedStyle = lipgloss.NewStyle().
			Foreground(SuccessColor)

	PeerDuplicateStyle = lipgloss.NewStyle().
				Foreground(WarningColor)

	PeerKnownStyle = lipgloss.NewStyle().
			Foreground(MutedColor)

	SuccessTitleStyle = lipgloss.NewStyle().
				Foreground(SuccessColor).
				Bold(true)

	ErrorTitleStyle = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	ErrorMessageStyle = lipgloss.NewStyle().
				Foreground(ErrorColor)

	ResultKeyStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Width(16)

	ResultValueStyle = lipgloss.NewStyle().
				Foreground(TextColor)

	HelpStyle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true).
			PaddingLeft(2)
)

// Markers
const (
	SuccessMarker   = "✓"
	FailureMarker   = "✗"
	DuplicateMarker = "!"
	KnownMarker     = "·"
)

// GetTerminalWidth returns the width of the terminal on stderr, where all
// decoration goes, clamped to the supported range
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stderr.Fd()))
	if err != nil || width < MinTerminalWidth {
		return MinTerminalWidth
	}
	if width > MaxContentWidth {
		return MaxContentWidth
	}
	return width
}

// IsTerminal reports whether f is attached to a terminal
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RenderHorizontalDivider creates a horizontal line of the specified width
func RenderHorizontalDivider(width int, char string) string {
	return lipgloss.NewStyle().
		Foreground(PrimaryColor).
		Render(strings.Repeat(char, width))
}
