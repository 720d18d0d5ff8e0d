package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voxchat/internal/session"
	"voxchat/internal/transcript"
)

type fakeRecorder struct {
	started   []string
	stopped   int
	capturing bool
	startErr  error
	stopErr   error
}

func (r *fakeRecorder) Start(path string) error {
	if r.startErr != nil {
		return r.startErr
	}
	if r.capturing {
		return errors.New("already recording")
	}
	r.capturing = true
	r.started = append(r.started, path)
	return nil
}

func (r *fakeRecorder) Stop() error {
	if r.stopErr != nil {
		return r.stopErr
	}
	r.capturing = false
	r.stopped++
	return nil
}

// gate parks a fake call until the test releases it.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) wait() {
	close(g.entered)
	<-g.release
}

type fakeTranscriber struct {
	gate    *gate
	text    string
	err     error
	loadErr error
	loaded  []string
	paths   []string
}

func (s *fakeTranscriber) Load(model string) error {
	if s.loadErr != nil {
		return s.loadErr
	}
	s.loaded = append(s.loaded, model)
	return nil
}

func (s *fakeTranscriber) Transcribe(_ context.Context, path string) (string, error) {
	s.paths = append(s.paths, path)
	if s.gate != nil {
		s.gate.wait()
	}
	return s.text, s.err
}

type completion struct {
	model   string
	history []session.Turn
}

type fakeCompleter struct {
	mu    sync.Mutex
	calls []completion
	err   error

	failOn string // fail only the turn with this content
	block  string // park the turn with this content on gate
	gate   *gate
}

func (l *fakeCompleter) Complete(_ context.Context, model string, history []session.Turn) (string, error) {
	last := history[len(history)-1].Content

	l.mu.Lock()
	l.calls = append(l.calls, completion{model: model, history: history})
	err, failOn, block, g := l.err, l.failOn, l.block, l.gate
	l.mu.Unlock()

	if g != nil && last == block {
		g.wait()
	}
	if err != nil {
		return "", err
	}
	if failOn != "" && last == failOn {
		return "", errors.New("upstream error")
	}
	return "reply to " + last, nil
}

func newTestController(t *testing.T) (*Controller, *fakeRecorder, *fakeTranscriber, *fakeCompleter) {
	t.Helper()

	rec := &fakeRecorder{}
	stt := &fakeTranscriber{text: "spoken words"}
	llm := &fakeCompleter{}

	c := NewController(
		session.New("base", "gpt-3.5-turbo"),
		transcript.New(120),
		Options{
			Recorder:    rec,
			Transcriber: stt,
			Completer:   llm,
			AudioPath:   "/tmp/voice.wav",
		},
	)

	return c, rec, stt, llm
}

func TestController_SendTextTurns(t *testing.T) {
	c, _, _, llm := newTestController(t)
	ctx := context.Background()

	const turns = 4
	for i := 0; i < turns; i++ {
		c.SendText(ctx, "message")
	}

	history := c.Session().History()
	if len(history) != 2*turns {
		t.Fatalf("Expected %d history entries, got %d", 2*turns, len(history))
	}
	for i, turn := range history {
		want := session.RoleUser
		if i%2 == 1 {
			want = session.RoleAssistant
		}
		if turn.Role != want {
			t.Errorf("Entry %d role = %s, want %s", i, turn.Role, want)
		}
	}

	if c.Transcript().Len() != 2*turns {
		t.Errorf("Expected %d rendered entries, got %d", 2*turns, c.Transcript().Len())
	}
	if c.Busy() {
		t.Error("Expected busy indicator to be cleared")
	}

	// Each request carries the full history plus the new user turn.
	for i, call := range llm.calls {
		if len(call.history) != 2*i+1 {
			t.Errorf("Call %d sent %d turns, want %d", i, len(call.history), 2*i+1)
		}
	}
}

func TestController_SendTextStoresText(t *testing.T) {
	c, _, _, _ := newTestController(t)

	c.SendText(context.Background(), "hello")

	history := c.Session().History()
	if history[0] != session.UserTurn("hello") {
		t.Errorf("Expected user turn 'hello', got %+v", history[0])
	}
	if history[1] != session.AssistantTurn("reply to hello") {
		t.Errorf("Unexpected assistant turn %+v", history[1])
	}

	entries := c.Transcript().Entries()
	if entries[0].Speaker != UserName || entries[1].Speaker != "gpt 3.5 turbo" {
		t.Errorf("Unexpected speakers %q, %q", entries[0].Speaker, entries[1].Speaker)
	}
}

func TestController_SendTextIgnoresBlank(t *testing.T) {
	c, _, _, llm := newTestController(t)

	c.SendText(context.Background(), "   ")

	if c.Transcript().Len() != 0 || len(llm.calls) != 0 {
		t.Error("Expected blank input to be ignored")
	}
}

func TestController_SendTextCompletionFailure(t *testing.T) {
	c, _, _, llm := newTestController(t)
	llm.err = errors.New("quota exceeded")

	c.SendText(context.Background(), "hello")

	entries := c.Transcript().Entries()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 rendered entries, got %d", len(entries))
	}
	if entries[0].Speaker != UserName || entries[0].Body != "hello" {
		t.Errorf("Unexpected user bubble %+v", entries[0])
	}
	if entries[1].Speaker != "gpt 3.5 turbo" {
		t.Errorf("Expected assistant-labelled error bubble, got %q", entries[1].Speaker)
	}
	if !strings.Contains(entries[1].Body, "quota exceeded") {
		t.Errorf("Error bubble %q does not contain the error", entries[1].Body)
	}

	if c.Session().Len() != 0 {
		t.Errorf("Expected no history after failed turn, got %d", c.Session().Len())
	}
	if c.Busy() {
		t.Error("Expected busy indicator to be cleared")
	}
}

func TestController_RecordingRoundTrip(t *testing.T) {
	c, rec, stt, llm := newTestController(t)
	ctx := context.Background()

	c.ToggleRecording(ctx)

	if c.State() != StateRecording || !c.Session().Recording() {
		t.Fatalf("Expected recording state, got %s", c.State())
	}
	if c.RecordLabel() != LabelStop {
		t.Errorf("Expected label %q, got %q", LabelStop, c.RecordLabel())
	}
	if len(rec.started) != 1 || rec.started[0] != "/tmp/voice.wav" {
		t.Errorf("Unexpected capture starts %v", rec.started)
	}

	c.ToggleRecording(ctx)

	if rec.stopped != 1 {
		t.Errorf("Expected one stop, got %d", rec.stopped)
	}
	if len(stt.paths) != 1 || stt.paths[0] != "/tmp/voice.wav" {
		t.Errorf("Unexpected transcription inputs %v", stt.paths)
	}
	if len(llm.calls) != 1 || llm.calls[0].history[0].Content != "spoken words" {
		t.Errorf("Unexpected completion calls %+v", llm.calls)
	}

	entries := c.Transcript().Entries()
	if len(entries) != 2 || entries[0].Body != "spoken words" || entries[1].Body != "reply to spoken words" {
		t.Errorf("Unexpected transcript %+v", entries)
	}
	if c.Session().Len() != 2 {
		t.Errorf("Expected 2 history entries, got %d", c.Session().Len())
	}
	if c.Session().Recording() || c.State() != StateIdle || c.Busy() {
		t.Error("Expected controller back at idle")
	}
	if c.RecordLabel() != LabelStart {
		t.Errorf("Expected label %q, got %q", LabelStart, c.RecordLabel())
	}
}

func TestController_RecordingFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*fakeRecorder, *fakeTranscriber, *fakeCompleter)
		wantBubble int
		wantText   string
	}{
		{
			name:       "transcription",
			setup:      func(_ *fakeRecorder, s *fakeTranscriber, _ *fakeCompleter) { s.err = errors.New("bad audio") },
			wantBubble: 1,
			wantText:   "bad audio",
		},
		{
			name:       "completion",
			setup:      func(_ *fakeRecorder, _ *fakeTranscriber, l *fakeCompleter) { l.err = errors.New("network down") },
			wantBubble: 2,
			wantText:   "network down",
		},
		{
			name:       "stop",
			setup:      func(r *fakeRecorder, _ *fakeTranscriber, _ *fakeCompleter) { r.stopErr = errors.New("device lost") },
			wantBubble: 1,
			wantText:   "device lost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec, stt, llm := newTestController(t)
			tt.setup(rec, stt, llm)
			ctx := context.Background()

			c.ToggleRecording(ctx)
			c.ToggleRecording(ctx)

			entries := c.Transcript().Entries()
			if len(entries) != tt.wantBubble {
				t.Fatalf("Expected %d bubbles, got %d: %+v", tt.wantBubble, len(entries), entries)
			}
			last := entries[len(entries)-1]
			if !strings.Contains(last.Body, tt.wantText) {
				t.Errorf("Error bubble %q does not mention %q", last.Body, tt.wantText)
			}
			if c.Session().Recording() {
				t.Error("Expected recording flag to be forced false")
			}
			if c.State() != StateIdle || c.Busy() {
				t.Errorf("Expected idle and not busy, got %s busy=%v", c.State(), c.Busy())
			}
			if c.Session().Len() != 0 {
				t.Errorf("Expected no history, got %d", c.Session().Len())
			}
		})
	}
}

func TestController_RecordingStartFailure(t *testing.T) {
	c, rec, _, _ := newTestController(t)
	rec.startErr = errors.New("no input device")

	c.ToggleRecording(context.Background())

	if c.Session().Recording() || c.State() != StateIdle {
		t.Error("Expected controller to stay idle")
	}
	if c.Transcript().Len() != 1 {
		t.Errorf("Expected an error bubble, got %d entries", c.Transcript().Len())
	}
}

func TestController_Clear(t *testing.T) {
	c, _, _, llm := newTestController(t)
	ctx := context.Background()

	c.SendText(ctx, "one")
	llm.err = errors.New("boom")
	c.SendText(ctx, "two")

	c.Clear()

	if c.Session().Len() != 0 {
		t.Errorf("Expected empty history, got %d", c.Session().Len())
	}
	if c.Transcript().Len() != 0 {
		t.Errorf("Expected empty transcript, got %d", c.Transcript().Len())
	}
}

func TestController_SelectSpeechModel(t *testing.T) {
	c, _, stt, _ := newTestController(t)
	c.SendText(context.Background(), "hello")
	before := c.Transcript().Entries()

	if err := c.SelectSpeechModel("small"); err != nil {
		t.Fatalf("SelectSpeechModel failed: %v", err)
	}

	if len(stt.loaded) != 1 || stt.loaded[0] != "small" {
		t.Errorf("Expected model 'small' to be loaded, got %v", stt.loaded)
	}
	if c.Session().SpeechModel() != "small" {
		t.Errorf("Expected speech model 'small', got %q", c.Session().SpeechModel())
	}
	if c.Session().Len() != 2 {
		t.Errorf("Model selection changed history to %d entries", c.Session().Len())
	}
	after := c.Transcript().Entries()
	if len(after) != len(before) || after[0] != before[0] || after[1] != before[1] {
		t.Error("Model selection changed rendered entries")
	}

	stt.loadErr = errors.New("missing file")
	if err := c.SelectSpeechModel("large-v3"); err == nil {
		t.Error("Expected load error")
	}
	if c.Session().SpeechModel() != "small" {
		t.Errorf("Failed load replaced speech model with %q", c.Session().SpeechModel())
	}
}

func TestController_SelectLanguageModel(t *testing.T) {
	c, _, _, llm := newTestController(t)

	c.SelectLanguageModel("gpt-4o")
	c.SendText(context.Background(), "hi")

	if llm.calls[0].model != "gpt-4o" {
		t.Errorf("Expected model 'gpt-4o', got %q", llm.calls[0].model)
	}
	if got := c.Transcript().Entries()[1].Speaker; got != "gpt 4o" {
		t.Errorf("Expected speaker 'gpt 4o', got %q", got)
	}
}

func TestController_Resize(t *testing.T) {
	c, _, _, _ := newTestController(t)
	c.SendText(context.Background(), "a")
	c.SendText(context.Background(), "b")

	c.Resize(60)

	for _, e := range c.Transcript().Entries() {
		if e.Width != 40 {
			t.Errorf("Expected width 40, got %d", e.Width)
		}
	}
}

func TestController_OnChangeAndSpeak(t *testing.T) {
	c, _, _, _ := newTestController(t)

	spoken := make(chan string, 1)
	c.speak = func(s string) error {
		spoken <- s
		return nil
	}

	changes := 0
	c.OnChange(func() { changes++ })

	c.SendText(context.Background(), "hi")

	if changes == 0 {
		t.Error("Expected change notifications")
	}

	select {
	case s := <-spoken:
		if s != "reply to hi" {
			t.Errorf("Spoke %q", s)
		}
	case <-time.After(time.Second):
		t.Error("Reply was not spoken")
	}
}

func TestController_Handle(t *testing.T) {
	c, _, stt, _ := newTestController(t)
	ctx := context.Background()

	if err := c.Handle(ctx, Command{Cmd: CmdSend, Arg: "hello"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.Session().Len() != 2 {
		t.Errorf("Expected 2 history entries, got %d", c.Session().Len())
	}

	if err := c.Handle(ctx, Command{Cmd: CmdSpeechModel, Arg: "tiny"}); err != nil || stt.loaded[0] != "tiny" {
		t.Errorf("stt-model: err=%v loaded=%v", err, stt.loaded)
	}
	if err := c.Handle(ctx, Command{Cmd: CmdLanguageModel, Arg: "gpt-4o-mini"}); err != nil {
		t.Errorf("llm-model: %v", err)
	}
	if c.Session().LanguageModel() != "gpt-4o-mini" {
		t.Errorf("Unexpected language model %q", c.Session().LanguageModel())
	}
	if err := c.Handle(ctx, Command{Cmd: CmdResize, Arg: "200"}); err != nil || c.Transcript().Viewport() != 200 {
		t.Errorf("resize: err=%v viewport=%d", err, c.Transcript().Viewport())
	}
	if err := c.Handle(ctx, Command{Cmd: CmdResize, Arg: "wide"}); err == nil {
		t.Error("Expected invalid width error")
	}
	if err := c.Handle(ctx, Command{Cmd: CmdRecord}); err != nil || c.State() != StateRecording {
		t.Errorf("record: err=%v state=%s", err, c.State())
	}
	if err := c.Handle(ctx, Command{Cmd: CmdClear}); err != nil || c.Transcript().Len() != 0 {
		t.Errorf("clear: err=%v len=%d", err, c.Transcript().Len())
	}
	if err := c.Handle(ctx, Command{Cmd: "dance"}); err == nil {
		t.Error("Expected unknown command error")
	}
}

func TestController_FailedSendDuringRecording(t *testing.T) {
	c, rec, _, llm := newTestController(t)
	llm.failOn = "typed"
	ctx := context.Background()

	c.ToggleRecording(ctx)
	c.SendText(ctx, "typed")

	if c.State() != StateRecording || !c.Session().Recording() {
		t.Fatalf("Failed send left state=%s recording=%v", c.State(), c.Session().Recording())
	}
	if c.RecordLabel() != LabelStop {
		t.Errorf("Expected label %q, got %q", LabelStop, c.RecordLabel())
	}

	c.ToggleRecording(ctx)

	if rec.stopped != 1 || rec.capturing {
		t.Fatalf("Expected capture to be stopped, stopped=%d capturing=%v", rec.stopped, rec.capturing)
	}
	if len(rec.started) != 1 {
		t.Errorf("Expected a single capture start, got %v", rec.started)
	}
	if c.State() != StateIdle || c.Session().Recording() || c.Busy() {
		t.Errorf("Expected idle, got %s recording=%v busy=%v", c.State(), c.Session().Recording(), c.Busy())
	}

	history := c.Session().History()
	if len(history) != 2 || history[0].Content != "spoken words" {
		t.Errorf("Unexpected history %+v", history)
	}
}

func awaitGate(t *testing.T, g *gate) {
	t.Helper()

	select {
	case <-g.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the recording exchange")
	}
}

func TestController_SendDuringRecordingPhases(t *testing.T) {
	phases := []State{StateRecording, StateTranscribing, StateAwaitingCompletion}

	for _, phase := range phases {
		for _, fails := range []bool{false, true} {
			name := phase.String() + "/ok"
			if fails {
				name = phase.String() + "/failed"
			}

			t.Run(name, func(t *testing.T) {
				c, rec, stt, llm := newTestController(t)
				if fails {
					llm.failOn = "typed"
				}
				ctx := context.Background()

				g := newGate()
				switch phase {
				case StateTranscribing:
					stt.gate = g
				case StateAwaitingCompletion:
					llm.block = "spoken words"
					llm.gate = g
				}

				c.ToggleRecording(ctx)

				done := make(chan struct{})
				if phase != StateRecording {
					go func() {
						c.ToggleRecording(ctx)
						close(done)
					}()
					awaitGate(t, g)
				}

				c.SendText(ctx, "typed")

				if c.State() != phase {
					t.Errorf("Typed send moved state to %s", c.State())
				}
				if !c.Session().Recording() {
					t.Error("Typed send cleared the recording flag")
				}
				// only the recording exchange may still be running
				if want := phase != StateRecording; c.Busy() != want {
					t.Errorf("Expected busy=%v, got %v", want, c.Busy())
				}

				if phase == StateRecording {
					c.ToggleRecording(ctx)
				} else {
					close(g.release)
					<-done
				}

				if rec.stopped != 1 {
					t.Errorf("Expected one stop, got %d", rec.stopped)
				}
				if c.State() != StateIdle || c.Session().Recording() || c.Busy() {
					t.Errorf("Expected idle, got %s recording=%v busy=%v", c.State(), c.Session().Recording(), c.Busy())
				}

				wantTurns := 4
				if fails {
					wantTurns = 2
				}
				if c.Session().Len() != wantTurns {
					t.Errorf("Expected %d history entries, got %d", wantTurns, c.Session().Len())
				}
			})
		}
	}
}

func TestController_SettleStopsOnCancel(t *testing.T) {
	c, _, _, _ := newTestController(t)
	c.sendSettle = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	c.SendText(ctx, "hi")

	if time.Since(start) > 5*time.Second {
		t.Error("Settle delay ignored cancellation")
	}
	if c.Busy() {
		t.Error("Expected busy indicator to be cleared")
	}
}
