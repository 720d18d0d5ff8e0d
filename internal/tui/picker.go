package tui

import "strings"

type pickerKind int

const (
	pickSpeech pickerKind = iota
	pickLanguage
)

// picker is the dropdown used for both model selections.
type picker struct {
	kind   pickerKind
	title  string
	items  []string
	cursor int
}

func newPicker(kind pickerKind, title string, items []string, current string) *picker {
	p := &picker{kind: kind, title: title, items: items}
	for i, it := range items {
		if it == current {
			p.cursor = i
		}
	}
	return p
}

func (p *picker) move(delta int) {
	if len(p.items) == 0 {
		return
	}
	p.cursor = (p.cursor + delta + len(p.items)) % len(p.items)
}

func (p *picker) selected() string {
	if len(p.items) == 0 {
		return ""
	}
	return p.items[p.cursor]
}

func (p *picker) view(height int) string {
	var b strings.Builder
	b.WriteString(nameStyle.Render(p.title))

	// keep the cursor on screen
	rows := max(1, height-3)
	start := 0
	if p.cursor >= rows {
		start = p.cursor - rows + 1
	}
	end := min(len(p.items), start+rows)

	for i := start; i < end; i++ {
		b.WriteString("\n")
		if i == p.cursor {
			b.WriteString(selectedStyle.Render("> " + p.items[i]))
		} else {
			b.WriteString("  " + p.items[i])
		}
	}

	return pickerStyle.Render(b.String())
}
