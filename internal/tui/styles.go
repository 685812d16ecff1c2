// Package tui provides terminal user interface components for LEGION.
//
// This package provides a centralized style system using Lip Gloss for
// consistent styling of status surfaces. All colors use AdaptiveColor for
// light/dark terminal support, and every status display keeps triple
// redundancy: icon + color + text.
//
// Call CheckNoColor() at the start of commands that print styled text to
// respect the NO_COLOR environment variable.
package tui

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/mrz1836/legion/internal/constants"
	"github.com/mrz1836/legion/internal/guard"
)

//nolint:gochecknoglobals // Intentional package-level constants for TUI styling API
var (
	// ColorPrimary is blue, used for active states and primary actions.
	ColorPrimary = lipgloss.AdaptiveColor{Light: "#0087AF", Dark: "#00D7FF"}

	// ColorSuccess is green, used for success states and healthy connections.
	ColorSuccess = lipgloss.AdaptiveColor{Light: "#008700", Dark: "#00FF87"}

	// ColorWarning is yellow, used for degraded states and pending attention.
	ColorWarning = lipgloss.AdaptiveColor{Light: "#AF8700", Dark: "#FFD700"}

	// ColorError is red, used for failures and suspended connections.
	ColorError = lipgloss.AdaptiveColor{Light: "#AF0000", Dark: "#FF5F5F"}

	// ColorMuted is gray, used for dim/inactive states and secondary text.
	ColorMuted = lipgloss.AdaptiveColor{Light: "#585858", Dark: "#6C6C6C"}

	// StyleBold applies bold formatting to text.
	StyleBold = lipgloss.NewStyle().Bold(true)

	// StyleDim applies dim formatting to text.
	StyleDim = lipgloss.NewStyle().Faint(true)
)

// OutputStyles holds common output styles.
type OutputStyles struct {
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style
	Dim     lipgloss.Style
}

// NewOutputStyles creates common output styles using AdaptiveColor for
// light/dark terminal support.
func NewOutputStyles() *OutputStyles {
	return &OutputStyles{
		Success: lipgloss.NewStyle().Foreground(ColorSuccess).Bold(true),
		Error:   lipgloss.NewStyle().Foreground(ColorError).Bold(true),
		Warning: lipgloss.NewStyle().Foreground(ColorWarning),
		Info:    lipgloss.NewStyle().Foreground(ColorPrimary),
		Dim:     lipgloss.NewStyle().Foreground(ColorMuted),
	}
}

// TableStyles holds lipgloss styles for table rendering.
type TableStyles struct {
	Header lipgloss.Style
	Cell   lipgloss.Style
	Dim    lipgloss.Style
}

// NewTableStyles creates styles for table rendering.
func NewTableStyles() *TableStyles {
	return &TableStyles{
		Header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#333333", Dark: "#DDDDDD"}),
		Cell: lipgloss.NewStyle(),
		Dim: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
	}
}

// CheckNoColor respects the NO_COLOR environment variable.
// Call this at the start of commands that output styled text.
func CheckNoColor() {
	if !HasColorSupport() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// HasColorSupport returns true if the terminal supports colors.
// Returns false if NO_COLOR is set (any value including empty string) or
// TERM=dumb, per the NO_COLOR standard: https://no-color.org/
func HasColorSupport() bool {
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	return true
}

// TaskStatusColors returns the semantic color definitions for task statuses.
func TaskStatusColors() map[constants.TaskStatus]lipgloss.AdaptiveColor {
	return map[constants.TaskStatus]lipgloss.AdaptiveColor{
		constants.TaskStatusPending:   ColorPrimary,
		constants.TaskStatusRunning:   ColorPrimary,
		constants.TaskStatusSucceeded: ColorSuccess,
		constants.TaskStatusFailed:    ColorError,
		constants.TaskStatusCancelled: ColorMuted,
	}
}

// TaskStatusIcon returns the icon for a given task status.
func TaskStatusIcon(status constants.TaskStatus) string {
	icons := map[constants.TaskStatus]string{
		constants.TaskStatusPending:   "○",
		constants.TaskStatusRunning:   "●",
		constants.TaskStatusSucceeded: "✓",
		constants.TaskStatusFailed:    "✗",
		constants.TaskStatusCancelled: "◌",
	}
	if icon, ok := icons[status]; ok {
		return icon
	}
	return "?"
}

// TargetStateColors returns the semantic color definitions for farm target
// states.
func TargetStateColors() map[constants.TargetState]lipgloss.AdaptiveColor {
	return map[constants.TargetState]lipgloss.AdaptiveColor{
		constants.TargetStateIdle:           ColorMuted,
		constants.TargetStateDispatched:     ColorPrimary,
		constants.TargetStateInTransit:      ColorPrimary,
		constants.TargetStateAwaitingReturn: ColorWarning,
	}
}

// TargetStateIcon returns the icon for a given farm target state.
func TargetStateIcon(state constants.TargetState) string {
	icons := map[constants.TargetState]string{
		constants.TargetStateIdle:           "○",
		constants.TargetStateDispatched:     "●",
		constants.TargetStateInTransit:      "→",
		constants.TargetStateAwaitingReturn: "←",
	}
	if icon, ok := icons[state]; ok {
		return icon
	}
	return "?"
}

// HealthColors returns the semantic color definitions for connection health.
func HealthColors() map[guard.Health]lipgloss.AdaptiveColor {
	return map[guard.Health]lipgloss.AdaptiveColor{
		guard.HealthHealthy:   ColorSuccess,
		guard.HealthDegraded:  ColorWarning,
		guard.HealthSuspended: ColorError,
	}
}

// HealthIcon returns the icon for a given connection health state.
func HealthIcon(h guard.Health) string {
	icons := map[guard.Health]string{
		guard.HealthHealthy:   "●",
		guard.HealthDegraded:  "◐",
		guard.HealthSuspended: "○",
	}
	if icon, ok := icons[h]; ok {
		return icon
	}
	return "?"
}

// FormatStatusWithIcon formats a task status with its icon for triple
// redundancy. Color is applied via Lip Gloss styles when rendering.
func FormatStatusWithIcon(status constants.TaskStatus) string {
	return TaskStatusIcon(status) + " " + string(status)
}

// FormatHealthBadge renders the connection badge shown on status surfaces:
// icon + colored health word, plus the consecutive-failure count when the
// connection is not healthy.
func FormatHealthBadge(state guard.State) string {
	style := lipgloss.NewStyle().Foreground(HealthColors()[state.Health])
	badge := HealthIcon(state.Health) + " " + style.Render(state.Health.String())
	if state.Health != guard.HealthHealthy && state.ConsecutiveFailures > 0 {
		badge += StyleDim.Render(
			" (" + itoa(state.ConsecutiveFailures) + " failures, backoff " + state.CurrentBackoff.String() + ")")
	}
	return badge
}

// itoa avoids pulling strconv into every call site for tiny counters.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b [20]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		b[i] = '-'
	}
	return string(b[i:])
}

// stripANSI removes ANSI CSI escape codes from a string. Used to calculate
// visible character count for padding.
func stripANSI(s string) string {
	var result strings.Builder
	runes := []rune(s)
	i := 0
	for i < len(runes) {
		if runes[i] == '\x1b' && i+1 < len(runes) && runes[i+1] == '[' {
			i += 2
			for i < len(runes) {
				c := runes[i]
				i++
				if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
					break
				}
			}
			continue
		}
		result.WriteRune(runes[i])
		i++
	}
	return result.String()
}

// padRight pads a string to the target visible width, counting runes and
// ignoring ANSI escape codes.
func padRight(s string, width int) string {
	visible := stripANSI(s)
	runeCount := utf8.RuneCountInString(visible)
	if runeCount >= width {
		if visible == s {
			runes := []rune(s)
			return string(runes[:width])
		}
		return s
	}
	return s + strings.Repeat(" ", width-runeCount)
}
