package display

import (
	_ "embed"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

//go:embed banner.txt
var bannerRaw string

// RenderBanner returns the banner art and a tagline, each centred for the
// current terminal width. Replace banner.txt to change the art.
func RenderBanner(tagline string) string {
	lines := strings.Split(strings.TrimRight(bannerRaw, "\n"), "\n")
	return centre(lines, termWidth(), BannerStyle) + centre([]string{tagline}, termWidth(), secondaryStyle)
}

// centre pads every line by the same amount so the block stays aligned.
func centre(lines []string, width int, style lipgloss.Style) string {
	maxW := 0
	for _, l := range lines {
		if w := lipgloss.Width(l); w > maxW {
			maxW = w
		}
	}
	pad := 0
	if width > maxW {
		pad = (width - maxW) / 2
	}

	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString(strings.Repeat(" ", pad))
		b.WriteString(style.Render(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// termWidth returns the current terminal column count, or 80 as fallback.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
