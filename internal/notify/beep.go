package notify

import (
	"fmt"
	log "log/slog"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Beeper plays a short mp3 cue. The clip is decoded once.
type Beeper struct {
	buf *beep.Buffer

	once    sync.Once
	initErr error
}

func NewBeeper(path string) (*Beeper, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open cue: %w", err)
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode cue: %w", err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)

	return &Beeper{buf: buf}, nil
}

// Beep plays the cue and waits for it to finish, so it is not captured by
// a recording that starts right after.
func (b *Beeper) Beep() {
	b.once.Do(func() {
		sr := b.buf.Format().SampleRate
		b.initErr = speaker.Init(sr, sr.N(time.Second/10))
	})
	if b.initErr != nil {
		log.Warn("Speaker unavailable", "err", b.initErr)
		return
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(b.buf.Streamer(0, b.buf.Len()), beep.Callback(func() {
		close(done)
	})))
	<-done
}
