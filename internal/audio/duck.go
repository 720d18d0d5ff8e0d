package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

// Pactl runs a pactl subcommand and returns its stdout.
type Pactl func(ctx context.Context, args ...string) ([]byte, error)

func runPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker fades every PulseAudio sink input except our own down while we
// record and brings them back afterwards.
type Ducker struct {
	pactl    Pactl
	self     []string
	factor   float64
	floor    int
	fade     time.Duration
	deadline time.Duration

	mu       sync.Mutex
	active   bool
	original map[int]int
}

func NewDucker(selfNames []string, factor float64, floor int, fade time.Duration) *Ducker {
	return &Ducker{
		pactl:    runPactl,
		self:     append([]string(nil), selfNames...),
		factor:   factor,
		floor:    clampVolume(floor),
		fade:     fade,
		deadline: 5 * time.Second,
		original: make(map[int]int),
	}
}

func (d *Ducker) Duck() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.deadline)
	defer cancel()

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var targets []fadeTarget
	for _, in := range inputs {
		to := int(math.Round(float64(in.Volume) * d.factor))
		if to < d.floor {
			to = d.floor
		}
		d.original[in.ID] = in.Volume
		targets = append(targets, fadeTarget{id: in.ID, from: in.Volume, to: clampVolume(to)})
	}

	if err := d.fadeTo(ctx, targets); err != nil {
		return err
	}
	d.active = true

	return nil
}

func (d *Ducker) Unduck() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.deadline)
	defer cancel()

	inputs, err := d.list(ctx)
	if err != nil {
		return err
	}

	var targets []fadeTarget
	for _, in := range inputs {
		// streams that appeared after Duck are left alone
		if orig, ok := d.original[in.ID]; ok {
			targets = append(targets, fadeTarget{id: in.ID, from: in.Volume, to: orig})
		}
	}

	if err := d.fadeTo(ctx, targets); err != nil {
		return err
	}
	d.original = make(map[int]int)
	d.active = false

	return nil
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}

	var res []sinkInput
	for _, in := range parseSinkInputs(string(out)) {
		if !d.isSelf(in) {
			res = append(res, in)
		}
	}
	return res, nil
}

func (d *Ducker) isSelf(in sinkInput) bool {
	for _, name := range d.self {
		if in.AppName == name {
			return true
		}
	}
	return false
}

type fadeTarget struct {
	id, from, to int
}

func (d *Ducker) fadeTo(ctx context.Context, targets []fadeTarget) error {
	if len(targets) == 0 {
		return nil
	}

	const step = 10 * time.Millisecond

	steps := int(d.fade / step)
	if steps < 1 {
		steps = 1
	}

	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := d.setVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}

		if i < steps {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.fade / time.Duration(steps)):
			}
		}
	}

	return nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	_, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", clampVolume(percent)))
	return err
}

// parseSinkInputs reads the output of `pactl list sink-inputs`.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range blocks[1:] {
		header, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			continue
		}

		in := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && in.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) == 2 {
					in.Volume, _ = strconv.Atoi(m[1])
				}
			}

			if rest, ok := strings.CutPrefix(line, "application.name ="); ok && in.AppName == "" {
				in.AppName = strings.Trim(strings.TrimSpace(rest), `"`)
			}
		}

		if in.Volume == 0 && in.AppName == "" {
			continue
		}
		res = append(res, in)
	}

	return res
}

func clampVolume(v int) int {
	return max(0, min(maxVolume, v))
}
