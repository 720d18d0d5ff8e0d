package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"voxchat/internal/transcript"
)

// bubbles renders transcript entries, caching one markdown renderer per
// wrap width.
type bubbles struct {
	style     string
	renderers map[int]*glamour.TermRenderer
}

func newBubbles(style string) *bubbles {
	if style == "" {
		style = "dark"
	}
	return &bubbles{
		style:     style,
		renderers: make(map[int]*glamour.TermRenderer),
	}
}

func (b *bubbles) render(m transcript.Message) string {
	avatar := avatarStyle.
		Background(lipgloss.Color(m.Color().Hex)).
		Render(m.Initials())

	body := lipgloss.JoinVertical(lipgloss.Left,
		nameStyle.Render(m.Speaker),
		b.markdown(m.Body, m.Width),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, avatar, " ", body)
}

func (b *bubbles) markdown(text string, width int) string {
	r, err := b.renderer(width)
	if err == nil {
		if out, err := r.Render(text); err == nil {
			return strings.Trim(out, "\n")
		}
	}

	if width > 0 {
		return lipgloss.NewStyle().Width(width).Render(text)
	}
	return text
}

func (b *bubbles) renderer(width int) (*glamour.TermRenderer, error) {
	if r, ok := b.renderers[width]; ok {
		return r, nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(b.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	b.renderers[width] = r

	return r, nil
}
