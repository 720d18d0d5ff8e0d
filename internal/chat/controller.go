package chat

import (
	"context"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	"voxchat/internal/session"
	"voxchat/internal/transcript"
)

const (
	UserName = "You"

	LabelStart = "Start Listening"
	LabelStop  = "Stop Listening"

	DefaultAudioFile = "voice.wav"
)

const failureFormat = "Exception while generating your response happened: %v"

// Recorder captures microphone audio into a file.
type Recorder interface {
	Start(path string) error
	Stop() error
}

// Transcriber turns a recorded clip into text with the currently loaded model.
type Transcriber interface {
	Load(model string) error
	Transcribe(ctx context.Context, path string) (string, error)
}

// Completer produces the assistant reply for the whole conversation.
type Completer interface {
	Complete(ctx context.Context, model string, history []session.Turn) (string, error)
}

type State int

const (
	StateIdle State = iota
	StateRecording
	StateTranscribing
	StateAwaitingCompletion
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateAwaitingCompletion:
		return "awaiting-completion"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Options struct {
	Recorder    Recorder
	Transcriber Transcriber
	Completer   Completer

	// AudioPath is the capture file, overwritten on every recording.
	AudioPath string

	// Busy indicator stays up this long after a reply lands.
	RecordSettle time.Duration
	SendSettle   time.Duration

	Cue   func()
	Speak func(string) error
}

// Controller sequences UI events against the session, the transcript and
// the two external services.
type Controller struct {
	sess *session.Session
	view *transcript.Transcript

	rec Recorder
	stt Transcriber
	llm Completer

	audioPath    string
	recordSettle time.Duration
	sendSettle   time.Duration
	cue          func()
	speak        func(string) error

	mu       sync.Mutex
	state    State
	inflight int // exchanges waiting on transcription or completion
	onChange func()
}

func NewController(sess *session.Session, view *transcript.Transcript, opt Options) *Controller {
	if opt.AudioPath == "" {
		opt.AudioPath = DefaultAudioFile
	}

	return &Controller{
		sess:         sess,
		view:         view,
		rec:          opt.Recorder,
		stt:          opt.Transcriber,
		llm:          opt.Completer,
		audioPath:    opt.AudioPath,
		recordSettle: opt.RecordSettle,
		sendSettle:   opt.SendSettle,
		cue:          opt.Cue,
		speak:        opt.Speak,
	}
}

func (c *Controller) Session() *session.Session         { return c.sess }
func (c *Controller) Transcript() *transcript.Transcript { return c.view }

// OnChange registers the redraw callback fired after every visible change.
func (c *Controller) OnChange(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.onChange = f
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.inflight > 0
}

func (c *Controller) RecordLabel() string {
	if c.State() == StateRecording {
		return LabelStop
	}
	return LabelStart
}

// ToggleRecording starts a capture when idle, otherwise finishes the
// current one and runs it through transcription and completion.
func (c *Controller) ToggleRecording(ctx context.Context) {
	if c.sess.BeginRecording() {
		c.startRecording()
		return
	}
	c.finishRecording(ctx)
}

func (c *Controller) startRecording() {
	if c.cue != nil {
		c.cue()
	}

	if err := c.rec.Start(c.audioPath); err != nil {
		c.fail(fmt.Errorf("start recording: %w", err))
		return
	}

	log.Info("Recording", "file", c.audioPath)

	c.setState(StateRecording)
	c.changed()
}

func (c *Controller) finishRecording(ctx context.Context) {
	if !c.transition(StateRecording, StateTranscribing) {
		log.Debug("Ignoring record toggle", "state", c.State())
		return
	}

	c.acquire()
	defer c.release()

	if err := c.rec.Stop(); err != nil {
		c.fail(fmt.Errorf("stop recording: %w", err))
		return
	}

	text, err := c.stt.Transcribe(ctx, c.audioPath)
	if err != nil {
		c.fail(fmt.Errorf("transcribe: %w", err))
		return
	}

	log.Info("Transcribed", "text", text)

	c.setState(StateAwaitingCompletion)
	if err := c.exchange(ctx, text, c.recordSettle); err != nil {
		c.fail(err)
		return
	}

	c.sess.SetRecording(false)
	c.setState(StateIdle)
}

// SendText runs the typed-message path. Blank input is ignored. It never
// touches the recording state, so it may run while a capture is in flight.
func (c *Controller) SendText(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}

	c.acquire()
	defer c.release()

	if err := c.exchange(ctx, text, c.sendSettle); err != nil {
		c.report(err)
	}
}

// exchange renders the user bubble, asks for a reply and commits both
// turns only when the reply arrives.
func (c *Controller) exchange(ctx context.Context, text string, settle time.Duration) error {
	c.view.Append(UserName, text)
	c.changed()

	model := c.sess.LanguageModel()
	history := append(c.sess.History(), session.UserTurn(text))

	reply, err := c.llm.Complete(ctx, model, history)
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}

	c.view.Append(transcript.SpeakerName(model), reply)
	c.sess.Append(session.UserTurn(text), session.AssistantTurn(reply))
	c.changed()

	if settle > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(settle):
		}
	}

	if c.speak != nil {
		go func() {
			if err := c.speak(reply); err != nil {
				log.Warn("Failed to voice out", "err", err)
			}
		}()
	}

	return nil
}

// report renders err as the assistant's reply.
func (c *Controller) report(err error) {
	log.Error("Exchange failed", "err", err)

	c.view.Append(transcript.SpeakerName(c.sess.LanguageModel()), fmt.Sprintf(failureFormat, err))
	c.changed()
}

// fail is the error edge of the recording path: the error is reported and
// the controller returns to idle. Nothing is retried.
func (c *Controller) fail(err error) {
	c.sess.SetRecording(false)
	c.setState(StateIdle)
	c.report(err)
}

// SelectSpeechModel loads the model right away; later transcriptions use it.
func (c *Controller) SelectSpeechModel(name string) error {
	if err := c.stt.Load(name); err != nil {
		log.Error("Failed to load speech model", "model", name, "err", err)
		return fmt.Errorf("load speech model %q: %w", name, err)
	}

	log.Info("Speech model loaded", "model", name)

	c.sess.SetSpeechModel(name)
	c.changed()

	return nil
}

func (c *Controller) SelectLanguageModel(name string) {
	c.sess.SetLanguageModel(name)
	log.Info("Language model selected", "model", name)
	c.changed()
}

func (c *Controller) Clear() {
	c.sess.Clear()
	c.view.Clear()
	c.changed()
}

func (c *Controller) Resize(width int) {
	c.view.Resize(width)
	c.changed()
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = s
}

func (c *Controller) transition(from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != from {
		return false
	}
	c.state = to

	return true
}

func (c *Controller) acquire() {
	c.mu.Lock()
	c.inflight++
	c.mu.Unlock()

	c.changed()
}

func (c *Controller) release() {
	c.mu.Lock()
	c.inflight--
	c.mu.Unlock()

	c.changed()
}

func (c *Controller) changed() {
	c.mu.Lock()
	f := c.onChange
	c.mu.Unlock()

	if f != nil {
		f()
	}
}
