package stt

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"path/filepath"
	"sync"
)

// AvailableModels lists the ggml model names whisper.cpp publishes.
func AvailableModels() []string {
	return []string{
		"tiny", "tiny.en",
		"base", "base.en",
		"small", "small.en",
		"medium", "medium.en",
		"large-v1", "large-v2", "large-v3", "large-v3-turbo",
	}
}

// ModelPath maps a model name to its ggml file inside dir.
func ModelPath(dir, name string) string {
	return filepath.Join(dir, "ggml-"+name+".bin")
}

var ErrNoModel = errors.New("no speech model loaded")

// Loader keeps one whisper model loaded at a time and swaps it on demand.
type Loader struct {
	dir  string
	opt  Options
	open func(path string) (*Transcriber, error)

	mu      sync.Mutex
	name    string
	current *Transcriber
}

func NewLoader(dir string, opt Options) *Loader {
	return &Loader{
		dir:  dir,
		opt:  opt,
		open: NewTranscriber,
	}
}

// Load reads the named model from disk; the previous model is released
// only after the new one is ready.
func (l *Loader) Load(name string) error {
	path := ModelPath(l.dir, name)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("model %q: %w", name, err)
	}

	t, err := l.open(path)
	if err != nil {
		return err
	}

	l.mu.Lock()
	prev := l.current
	l.current = t
	l.name = name
	l.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			log.Warn("Failed to release model", "err", err)
		}
	}

	log.Debug("Loaded whisper", "model", name, "path", path)

	return nil
}

func (l *Loader) Name() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.name
}

// Transcribe runs the loaded model over the audio file at path. The model
// stays locked for the duration so a concurrent Load cannot free it.
func (l *Loader) Transcribe(ctx context.Context, path string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return "", ErrNoModel
	}

	res, err := l.current.TranscribeFile(ctx, path, l.opt)
	if err != nil {
		return "", err
	}

	return res.Text, nil
}

func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.current == nil {
		return nil
	}
	err := l.current.Close()
	l.current = nil

	return err
}
