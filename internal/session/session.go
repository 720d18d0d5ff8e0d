package session

import "sync"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation history sent to the completion service.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// Session holds the per-process conversation state: history, model
// selections and the recording flag. Nothing is persisted.
type Session struct {
	mu sync.Mutex

	history       []Turn
	speechModel   string
	languageModel string
	recording     bool
}

func New(speechModel, languageModel string) *Session {
	return &Session{
		speechModel:   speechModel,
		languageModel: languageModel,
	}
}

// History returns a copy of the conversation so far.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Turn(nil), s.history...)
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.history)
}

func (s *Session) Append(turns ...Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, turns...)
}

func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = nil
}

func (s *Session) SpeechModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.speechModel
}

func (s *Session) SetSpeechModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.speechModel = name
}

func (s *Session) LanguageModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.languageModel
}

func (s *Session) SetLanguageModel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.languageModel = name
}

func (s *Session) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recording
}

func (s *Session) SetRecording(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recording = on
}

// BeginRecording flips the flag from false to true and reports whether it did.
func (s *Session) BeginRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording {
		return false
	}
	s.recording = true

	return true
}
