package ui

import (
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/opsline/triage/internal/types"
)

func TestRenderSeverityPlainWithoutColor(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() { lipgloss.SetColorProfile(termenv.EnvColorProfile()) })

	for _, sev := range []types.Severity{
		types.SeverityCritical, types.SeverityHigh, types.SeverityMedium,
		types.SeverityLow, types.SeverityInfo,
	} {
		got := RenderSeverity(sev)
		if got != string(sev) {
			t.Errorf("RenderSeverity(%s) with colors off = %q", sev, got)
		}
	}
}

func TestRenderHeaderUppercases(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	t.Cleanup(func() { lipgloss.SetColorProfile(termenv.EnvColorProfile()) })

	if got := RenderHeader("inbox"); !strings.Contains(got, "INBOX") {
		t.Errorf("RenderHeader = %q", got)
	}
}

func TestTruncateSimple(t *testing.T) {
	if got := TruncateSimple("short", 10); got != "short" {
		t.Errorf("no-op truncate: %q", got)
	}
	if got := TruncateSimple("a long title that needs cutting", 10); got != "a long ..." {
		t.Errorf("truncate: %q", got)
	}
	if got := TruncateSimple("abcdef", 3); got != "..." {
		t.Errorf("tiny max: %q", got)
	}
}
