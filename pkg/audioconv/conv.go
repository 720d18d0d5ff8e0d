package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// SampleRate is what whisper expects.
const SampleRate = 16000

type Options struct {
	MaxSamples int
}

type decoder func(r io.ReadSeeker) (pcm []float32, sampleRate int, err error)

var byExt = map[string]decoder{
	".wav":  decodeWAV,
	".mp3":  decodeMP3,
	".ogg":  decodeOgg,
	".oga":  decodeOgg,
	".opus": decodeOpus,
}

var byMagic = map[string]decoder{
	"RIFF": decodeWAV,
	"OggS": decodeOgg,
}

func sniff(magic []byte) decoder {
	if len(magic) < 4 {
		return nil
	}
	if dec, ok := byMagic[string(magic)]; ok {
		return dec
	}
	// ID3 tag or a bare MPEG audio frame sync
	if string(magic[:3]) == "ID3" || (magic[0] == 0xFF && magic[1]&0xE0 == 0xE0) {
		return decodeMP3
	}
	return nil
}

// DecodeFile reads an audio file and returns mono float32 PCM at 16 kHz.
// The format is chosen by sniffing the header, then by extension.
func DecodeFile(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	magic, _ := bufio.NewReader(f).Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	dec := sniff(magic)
	if dec == nil {
		dec = byExt[strings.ToLower(filepath.Ext(path))]
	}
	if dec == nil {
		return nil, fmt.Errorf("unsupported format: %s (supported: wav/mp3/ogg-vorbis/opus)", filepath.Ext(path))
	}

	pcm, sr, err := dec(f)
	if err != nil {
		return nil, err
	}

	pcm = resampleLinear(pcm, sr, SampleRate)
	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}

	return pcm, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, 0, errors.New("empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}

	channels, sr := 1, int(dec.SampleRate)
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			channels = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	if sr <= 0 {
		sr = 44100
	}

	return downmix(intsToFloat32(pb.Data, depth), channels), sr, nil
}

func decodeMP3(r io.ReadSeeker) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, err
	}
	if raw.Len() == 0 {
		return nil, 0, errors.New("empty mp3")
	}
	samples := make([]int16, raw.Len()/2)
	if err := binary.Read(&raw, binary.LittleEndian, samples); err != nil {
		return nil, 0, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}

	// go-mp3 always emits interleaved stereo.
	return downmix(int16sToFloat32(samples), 2), sr, nil
}

// decodeOgg tries Vorbis first, then Opus in the same container.
func decodeOgg(r io.ReadSeeker) ([]float32, int, error) {
	pcm, sr, err := decodeVorbis(r)
	if err == nil {
		return pcm, sr, nil
	}
	if _, serr := r.Seek(0, io.SeekStart); serr != nil {
		return nil, 0, serr
	}
	pcm, sr, oerr := decodeOpus(r)
	if oerr != nil {
		return nil, 0, fmt.Errorf("cannot decode ogg as vorbis (%v) or opus: %w", err, oerr)
	}
	return pcm, sr, nil
}

func decodeVorbis(r io.ReadSeeker) ([]float32, int, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, errors.New("invalid ogg/vorbis stream")
	}
	return downmix(pcm, format.Channels), format.SampleRate, nil
}

// Opus always decodes at 48 kHz.
func decodeOpus(r io.ReadSeeker) ([]float32, int, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	var (
		pcm []float32
		buf = make([]int16, 24000*channels)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, int16sToFloat32(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}

	return downmix(pcm, channels), 48000, nil
}
