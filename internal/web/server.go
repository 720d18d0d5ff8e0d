package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	log "log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voxchat/internal/chat"
	"voxchat/internal/transcript"
)

//go:embed static/index.html
var indexHTML []byte

type Entry struct {
	transcript.Message
	Initials string `json:"initials"`
	Color    string `json:"color"`
}

// Snapshot is the full UI state pushed to every browser after each change.
type Snapshot struct {
	Entries        []Entry  `json:"entries"`
	Busy           bool     `json:"busy"`
	Recording      bool     `json:"recording"`
	RecordLabel    string   `json:"record_label"`
	SpeechModel    string   `json:"speech_model"`
	LanguageModel  string   `json:"language_model"`
	SpeechModels   []string `json:"speech_models"`
	LanguageModels []string `json:"language_models"`
	Error          string   `json:"error,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// push queues msg, replacing an unsent older one: snapshots are complete
// so only the newest matters.
func (c *client) push(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

type Server struct {
	ctx            context.Context
	ctrl           *chat.Controller
	speechModels   []string
	languageModels []string
	upgrader       websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewServer wires the controller's change callback to a broadcast.
func NewServer(ctx context.Context, ctrl *chat.Controller, speechModels, languageModels []string) *Server {
	s := &Server{
		ctx:            ctx,
		ctrl:           ctrl,
		speechModels:   speechModels,
		languageModels: languageModels,
		clients:        make(map[*client]struct{}),
	}
	ctrl.OnChange(s.Broadcast)

	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	return mux
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("Web UI listening", "addr", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("Websocket upgrade failed", "err", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 1)}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	log.Debug("Browser connected", "remote", r.RemoteAddr)

	done := make(chan struct{})
	go s.writeLoop(c, done)

	c.push(s.encode(""))
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()

	close(done)
	conn.Close()
}

func (s *Server) readLoop(c *client) {
	for {
		var cmd chat.Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if !IsClosed(err) {
				log.Debug("Websocket read failed", "err", err)
			}
			return
		}

		// handlers block on transcription and completion
		go func() {
			if err := s.ctrl.Handle(s.ctx, cmd); err != nil {
				log.Warn("Command failed", "cmd", cmd.Cmd, "err", err)
				c.push(s.encode(err.Error()))
			}
		}()
	}
}

func (s *Server) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Debug("Websocket write failed", "err", err)
				return
			}
		}
	}
}

// Broadcast pushes the current state to every connected browser.
func (s *Server) Broadcast() {
	msg := s.encode("")

	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		c.push(msg)
	}
}

func (s *Server) Snapshot() Snapshot {
	sess := s.ctrl.Session()

	msgs := s.ctrl.Transcript().Entries()
	entries := make([]Entry, len(msgs))
	for i, m := range msgs {
		entries[i] = Entry{
			Message:  m,
			Initials: m.Initials(),
			Color:    m.Color().Hex,
		}
	}

	return Snapshot{
		Entries:        entries,
		Busy:           s.ctrl.Busy(),
		Recording:      s.ctrl.State() == chat.StateRecording,
		RecordLabel:    s.ctrl.RecordLabel(),
		SpeechModel:    sess.SpeechModel(),
		LanguageModel:  sess.LanguageModel(),
		SpeechModels:   s.speechModels,
		LanguageModels: s.languageModels,
	}
}

func (s *Server) encode(errText string) []byte {
	snap := s.Snapshot()
	snap.Error = errText

	data, err := json.Marshal(snap)
	if err != nil {
		log.Error("Failed to encode snapshot", "err", err)
		return nil
	}
	return data
}
