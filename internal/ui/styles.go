// Package ui provides terminal styling for tri CLI output.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/opsline/triage/internal/types"
)

// Ayu theme color palette
var (
	ColorGood = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorBad = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

var (
	GoodStyle   = lipgloss.NewStyle().Foreground(ColorGood)
	WarnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	BadStyle    = lipgloss.NewStyle().Foreground(ColorBad)
	MutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	AccentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	BoldStyle   = lipgloss.NewStyle().Bold(true)
)

// HeaderStyle for section headers - bold with accent color
var HeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)

// InitColor configures the color profile from the environment. NO_COLOR
// disables color entirely; CLICOLOR_FORCE forces it on even when stdout is
// not a TTY.
func InitColor() {
	if _, noColor := os.LookupEnv("NO_COLOR"); noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	if force := os.Getenv("CLICOLOR_FORCE"); force != "" && force != "0" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())
}

// RenderSeverity colors a severity by urgency: critical/high red, medium
// yellow, low/info muted.
func RenderSeverity(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return BadStyle.Bold(true).Render(string(s))
	case types.SeverityHigh:
		return BadStyle.Render(string(s))
	case types.SeverityMedium:
		return WarnStyle.Render(string(s))
	default:
		return MutedStyle.Render(string(s))
	}
}

// RenderIssueState colors an issue state: active work accent, snoozed and
// watch yellow, regressed red, closed muted.
func RenderIssueState(s types.IssueState) string {
	switch s {
	case types.IssueClosed:
		return MutedStyle.Render(string(s))
	case types.IssueSnoozed, types.IssueRegressionWatch:
		return WarnStyle.Render(string(s))
	case types.IssueRegressed:
		return BadStyle.Render(string(s))
	default:
		return AccentStyle.Render(string(s))
	}
}

// RenderInboxState colors an inbox item state.
func RenderInboxState(s types.InboxState) string {
	switch s {
	case types.ItemProposed:
		return AccentStyle.Render(string(s))
	case types.ItemSnoozed:
		return WarnStyle.Render(string(s))
	default:
		return MutedStyle.Render(string(s))
	}
}

// RenderMuted renders text with muted (gray) styling
func RenderMuted(s string) string {
	return MutedStyle.Render(s)
}

// RenderAccent renders text with accent (blue) styling
func RenderAccent(s string) string {
	return AccentStyle.Render(s)
}

// RenderHeader renders a section header in uppercase with accent color
func RenderHeader(s string) string {
	return HeaderStyle.Render(strings.ToUpper(s))
}

// TruncateSimple performs simple end truncation with "..." suffix.
// UTF-8 safe.
func TruncateSimple(text string, maxLen int) string {
	if utf8.RuneCountInString(text) <= maxLen {
		return text
	}
	runes := []rune(text)
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}
