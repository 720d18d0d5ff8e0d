package transcript

import (
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// Padding is subtracted from the viewport width to get the word-wrap width.
const Padding = 20

// Message is one rendered chat bubble. Only Width changes after creation,
// and only when the viewport is resized.
type Message struct {
	Speaker string `json:"speaker"`
	Body    string `json:"body"`
	Width   int    `json:"width"`
}

func (m Message) Initials() string { return Initials(m.Speaker) }
func (m Message) Color() Color     { return AvatarColor(m.Speaker) }

// Transcript is the ordered list of rendered messages.
type Transcript struct {
	mu       sync.Mutex
	entries  []Message
	viewport int
}

func New(viewport int) *Transcript {
	return &Transcript{viewport: viewport}
}

// WrapWidth derives the body width from the viewport width. Narrow
// viewports keep their full width.
func WrapWidth(viewport int) int {
	if viewport > Padding {
		return viewport - Padding
	}
	return viewport
}

func (t *Transcript) Append(speaker, body string) Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := Message{
		Speaker: speaker,
		Body:    body,
		Width:   WrapWidth(t.viewport),
	}
	t.entries = append(t.entries, m)

	return m
}

func (t *Transcript) Entries() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]Message(nil), t.entries...)
}

func (t *Transcript) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = nil
}

func (t *Transcript) Viewport() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.viewport
}

// Resize records the new viewport width and rewrites the wrap width of
// every existing entry.
func (t *Transcript) Resize(viewport int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.viewport = viewport
	w := WrapWidth(viewport)
	for i := range t.entries {
		t.entries[i].Width = w
	}
}

// Initials returns the upper-cased first character of name.
func Initials(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	if size == 0 {
		return ""
	}
	return string(unicode.ToUpper(r))
}

type Color struct {
	Name string `json:"name"`
	Hex  string `json:"hex"`
}

var Palette = []Color{
	{"amber", "#FFC107"},
	{"blue", "#2196F3"},
	{"brown", "#795548"},
	{"cyan", "#00BCD4"},
	{"green", "#4CAF50"},
	{"indigo", "#3F51B5"},
	{"lime", "#CDDC39"},
	{"orange", "#FF9800"},
	{"pink", "#E91E63"},
	{"purple", "#9C27B0"},
	{"red", "#F44336"},
	{"teal", "#009688"},
	{"yellow", "#FFEB3B"},
}

// AvatarColor picks a palette entry from the FNV-1a hash of name.
func AvatarColor(name string) Color {
	h := fnv.New32a()
	h.Write([]byte(name))

	return Palette[h.Sum32()%uint32(len(Palette))]
}

// SpeakerName turns a model identifier into a display name ("gpt-4o" -> "gpt 4o").
func SpeakerName(model string) string {
	return strings.ReplaceAll(model, "-", " ")
}
