// Package feedback plays short audio cues so the user can hear the
// listener change state without watching the terminal: an ascending
// two-note figure when listening starts, a blip on detection, and the
// descending figure on shutdown. Playback is best-effort; a broken
// output device never affects detection.
package feedback

import (
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

const (
	noteC4 = 261.63
	noteG4 = 392.00
	noteG5 = 783.99

	playbackRate = beep.SampleRate(44100)

	noteDuration = 100 * time.Millisecond
	gapDuration  = 50 * time.Millisecond

	// 10ms attack and release keep the tones click-free.
	envelopeDuration = 10 * time.Millisecond

	gain = 0.3
)

type Player struct {
	enabled bool
	logger  *slog.Logger

	initOnce sync.Once
	initErr  error
}

func NewPlayer(enabled bool, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{enabled: enabled, logger: logger}
}

// Listening plays the ascending cue. Non-blocking.
func (p *Player) Listening() {
	p.play(toneSequence(playbackRate, noteC4, noteG4))
}

// Done plays the descending cue. Non-blocking.
func (p *Player) Done() {
	p.play(toneSequence(playbackRate, noteG4, noteC4))
}

// Detection plays a single short high blip. Non-blocking.
func (p *Player) Detection() {
	p.play(toneSequence(playbackRate, noteG5))
}

// Chime decodes an MP3 file and plays it instead of the generated
// detection blip.
func (p *Player) Chime(path string) {
	if !p.enabled || p.init() != nil {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		p.logger.Warn("open chime", "path", path, "err", err)
		return
	}

	streamer, format, err := mp3.Decode(f)
	if err != nil {
		f.Close()
		p.logger.Warn("decode chime", "path", path, "err", err)
		return
	}

	var s beep.Streamer = streamer
	if format.SampleRate != playbackRate {
		s = beep.Resample(4, format.SampleRate, playbackRate, streamer)
	}

	speaker.Play(beep.Seq(s, beep.Callback(func() {
		streamer.Close()
	})))
}

func (p *Player) play(samples []float64) {
	if !p.enabled || p.init() != nil {
		return
	}

	speaker.Play(&toneStreamer{samples: samples})
}

func (p *Player) init() error {
	p.initOnce.Do(func() {
		p.initErr = speaker.Init(playbackRate, playbackRate.N(time.Second/10))
		if p.initErr != nil {
			p.logger.Warn("audio output unavailable, cues disabled", "err", p.initErr)
		}
	})
	return p.initErr
}

// toneSequence renders the given notes as enveloped sine tones with
// short gaps between them.
func toneSequence(rate beep.SampleRate, freqs ...float64) []float64 {
	noteLen := rate.N(noteDuration)
	gapLen := rate.N(gapDuration)
	envLen := rate.N(envelopeDuration)

	total := len(freqs) * noteLen
	if len(freqs) > 1 {
		total += (len(freqs) - 1) * gapLen
	}

	out := make([]float64, total)
	pos := 0
	for i, freq := range freqs {
		if i > 0 {
			pos += gapLen
		}
		for j := 0; j < noteLen; j++ {
			v := math.Sin(2 * math.Pi * freq * float64(j) / float64(rate))

			env := 1.0
			if j < envLen {
				env = float64(j) / float64(envLen)
			} else if j >= noteLen-envLen {
				env = float64(noteLen-1-j) / float64(envLen)
			}

			out[pos+j] = v * env * gain
		}
		pos += noteLen
	}

	return out
}

type toneStreamer struct {
	samples []float64
	pos     int
}

func (t *toneStreamer) Stream(out [][2]float64) (int, bool) {
	if t.pos >= len(t.samples) {
		return 0, false
	}

	n := 0
	for i := range out {
		if t.pos >= len(t.samples) {
			break
		}
		v := t.samples[t.pos]
		out[i][0] = v
		out[i][1] = v
		t.pos++
		n++
	}

	return n, true
}

func (t *toneStreamer) Err() error {
	return nil
}
