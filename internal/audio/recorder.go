package audio

import (
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"voxchat/pkg/audioconv"
)

const (
	sampleRate = audioconv.SampleRate
	frameSize  = 1024
)

var (
	ErrBusy         = errors.New("already recording")
	ErrNotRecording = errors.New("not recording")
	ErrNoAudio      = errors.New("no audio recorded")
)

// Stream is the part of a portaudio stream the recorder drives.
type Stream interface {
	Start() error
	Read() error
	Stop() error
	Close() error
}

// OpenFunc opens a mono input stream that fills buf on every Read.
type OpenFunc func(buf []float32) (Stream, error)

func openDefault(buf []float32) (Stream, error) {
	return portaudio.OpenDefaultStream(1, 0, float64(sampleRate), len(buf), buf)
}

type capture struct {
	path   string
	stream Stream
	stop   chan struct{}
	done   chan error
	pcm    []float32
}

// Recorder captures the default microphone between Start and Stop and
// writes the clip to a WAV file.
type Recorder struct {
	open   OpenFunc
	maxDur time.Duration
	ducker *Ducker

	mu  sync.Mutex
	cur *capture
}

type Option func(*Recorder)

// WithMaxDuration caps a single capture; reading stops silently at the cap.
func WithMaxDuration(d time.Duration) Option {
	return func(r *Recorder) { r.maxDur = d }
}

// WithDucker lowers other applications while capturing.
func WithDucker(d *Ducker) Option {
	return func(r *Recorder) { r.ducker = d }
}

func WithStream(open OpenFunc) Option {
	return func(r *Recorder) { r.open = open }
}

func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		open:   openDefault,
		maxDur: 5 * time.Minute,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Recorder) Init() error {
	return portaudio.Initialize()
}

func (r *Recorder) Close() {
	portaudio.Terminate()
}

// Start begins capturing; the clip is written to path on Stop.
func (r *Recorder) Start(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil {
		return ErrBusy
	}

	buf := make([]float32, frameSize)
	stream, err := r.open(buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}

	if r.ducker != nil {
		if err := r.ducker.Duck(); err != nil {
			log.Warn("Failed to duck other streams", "err", err)
		}
	}

	c := &capture{
		path:   path,
		stream: stream,
		stop:   make(chan struct{}),
		done:   make(chan error, 1),
	}
	r.cur = c

	go r.read(c, buf)

	return nil
}

func (r *Recorder) read(c *capture, buf []float32) {
	maxFrames := int(r.maxDur.Seconds() * sampleRate / frameSize)

	for i := 0; maxFrames <= 0 || i < maxFrames; i++ {
		select {
		case <-c.stop:
			c.done <- nil
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			c.done <- err
			return
		}
		c.pcm = append(c.pcm, buf...)
	}

	log.Warn("Capture reached max duration", "max", r.maxDur)
	<-c.stop
	c.done <- nil
}

// Stop ends the capture and writes the WAV file, overwriting the previous one.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	c := r.cur
	r.cur = nil
	r.mu.Unlock()

	if c == nil {
		return ErrNotRecording
	}

	close(c.stop)
	readErr := <-c.done

	c.stream.Stop()
	c.stream.Close()

	if r.ducker != nil {
		if err := r.ducker.Unduck(); err != nil {
			log.Warn("Failed to restore other streams", "err", err)
		}
	}

	if readErr != nil {
		return fmt.Errorf("read stream: %w", readErr)
	}
	if len(c.pcm) == 0 {
		return ErrNoAudio
	}

	log.Debug("Captured", "samples", len(c.pcm), "file", c.path)

	return audioconv.WriteWAV(c.path, c.pcm, sampleRate)
}
