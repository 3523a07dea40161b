// Package vad provides a light-weight voice activity gate built on
// spectral flux: the Euclidean distance between the magnitude spectra of
// consecutive audio frames. Speech onsets produce a sharp flux jump over
// the ambient baseline; sustained low flux afterwards marks the end of
// the utterance.
package vad

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Detector computes the spectral flux of a stream of equally sized
// audio frames.
type Detector struct {
	prev []float64
}

func New() *Detector {
	return &Detector{}
}

// Flux returns the spectral distance between chunk and the previously
// observed chunk. The first call establishes the reference spectrum and
// returns 0.
func (d *Detector) Flux(chunk []int16) float64 {
	samples := make([]float64, len(chunk))
	for i, s := range chunk {
		samples[i] = float64(s)
	}

	spectrum := fft.FFTReal(samples)

	// Real input: the upper half of the spectrum mirrors the lower.
	mags := make([]float64, len(spectrum)/2+1)
	for i := range mags {
		mags[i] = cmplx.Abs(spectrum[i])
	}

	if d.prev == nil {
		d.prev = mags
		return 0
	}

	var sum float64
	n := len(mags)
	if len(d.prev) < n {
		n = len(d.prev)
	}
	for i := 0; i < n; i++ {
		diff := mags[i] - d.prev[i]
		sum += diff * diff
	}

	d.prev = mags

	return sum
}

// Reset drops the reference spectrum.
func (d *Detector) Reset() {
	d.prev = nil
}

// Event reports a gate transition.
type Event int

const (
	EventNone Event = iota
	EventOpen
	EventClose
)

const onsetRatio = 1.75

// Gate turns a flux sequence into utterance boundaries. It opens when
// flux jumps to at least onsetRatio times the running baseline and
// closes after quietAfter consecutive quiet frames.
type Gate struct {
	quietAfter int
	baseline   float64
	open       bool
	quiet      int
}

func NewGate(quietAfter int) *Gate {
	if quietAfter < 1 {
		quietAfter = 1
	}
	return &Gate{quietAfter: quietAfter}
}

// Update feeds one flux value through the gate and reports any
// transition it caused.
func (g *Gate) Update(flux float64) Event {
	if g.baseline == 0 {
		g.baseline = flux
		return EventNone
	}

	if !g.open {
		if flux >= g.baseline*onsetRatio {
			g.open = true
			g.quiet = 0
			return EventOpen
		}
		g.baseline = flux
		return EventNone
	}

	if flux*onsetRatio <= g.baseline {
		g.quiet++
		if g.quiet >= g.quietAfter {
			g.open = false
			g.quiet = 0
			return EventClose
		}
		return EventNone
	}

	g.quiet = 0
	g.baseline = flux

	return EventNone
}

// Open reports whether the gate currently considers speech active.
func (g *Gate) Open() bool {
	return g.open
}

// Reset returns the gate to its initial closed state.
func (g *Gate) Reset() {
	g.baseline = 0
	g.open = false
	g.quiet = 0
}
