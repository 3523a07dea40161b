// Package wakeword scores audio chunks against a configured wake phrase.
//
// The scorer buffers audio internally: a spectral-flux gate finds
// utterance boundaries, a pre-roll ring preserves the audio from just
// before the onset, and the completed utterance is transcribed and
// matched against the phrase. Callers only ever see the per-chunk
// contract — feed a chunk, get a confidence in [0, 1] back.
package wakeword

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"earshot/internal/vad"
	"earshot/pkg/audioconv"
	"earshot/pkg/ring"
)

// Scorer turns a stream of fixed-size audio chunks into wake-word
// confidence scores. Most chunks score 0; a chunk that completes an
// utterance carries the confidence for the whole utterance.
type Scorer interface {
	Score(ctx context.Context, chunk []int16) (float64, error)
	Reset()
}

// Transcriber is the slice of the speech-to-text engine the scorer needs.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []float32) (string, error)
}

const (
	defaultQuietChunks     = 4
	defaultPrerollChunks   = 4
	defaultMaxUtteranceSec = 3
	sampleRate             = 16000
)

type Config struct {
	// Phrase is the wake phrase to match, e.g. "hey earshot".
	Phrase      string
	Transcriber Transcriber
	// ChunkSize is the expected samples per chunk, used to size buffers.
	ChunkSize int
	// QuietChunks is how many quiet chunks end an utterance.
	QuietChunks int
	Logger      *slog.Logger
}

type PhraseScorer struct {
	phrase    string
	tr        Transcriber
	flux      *vad.Detector
	gate      *vad.Gate
	preroll   *ring.Buffer
	utterance []int16
	maxLen    int
	logger    *slog.Logger
}

func NewPhraseScorer(cfg Config) (*PhraseScorer, error) {
	if cfg.Phrase == "" {
		return nil, errors.New("wake phrase is empty")
	}
	if cfg.Transcriber == nil {
		return nil, errors.New("transcriber is nil")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}

	quiet := cfg.QuietChunks
	if quiet <= 0 {
		quiet = defaultQuietChunks
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &PhraseScorer{
		phrase:  cfg.Phrase,
		tr:      cfg.Transcriber,
		flux:    vad.New(),
		gate:    vad.NewGate(quiet),
		preroll: ring.New(cfg.ChunkSize * defaultPrerollChunks),
		maxLen:  sampleRate * defaultMaxUtteranceSec,
		logger:  logger,
	}, nil
}

// Score feeds one chunk through the gate. It returns 0 while no
// utterance is in progress or complete; when a chunk closes an
// utterance the transcription confidence for that utterance is
// returned.
func (s *PhraseScorer) Score(ctx context.Context, chunk []int16) (float64, error) {
	flux := s.flux.Flux(chunk)
	ev := s.gate.Update(flux)

	switch ev {
	case vad.EventOpen:
		// Start the utterance with the pre-onset audio so the first
		// syllable of the phrase is not clipped.
		s.utterance = append(s.utterance, s.preroll.Read()...)
		s.utterance = append(s.utterance, chunk...)
		return 0, nil

	case vad.EventClose:
		s.utterance = append(s.utterance, chunk...)
		return s.evaluate(ctx)
	}

	if s.gate.Open() {
		s.utterance = append(s.utterance, chunk...)
		if len(s.utterance) >= s.maxLen {
			// Cap runaway utterances and score what we have.
			return s.evaluate(ctx)
		}
		return 0, nil
	}

	s.preroll.Add(chunk)
	return 0, nil
}

func (s *PhraseScorer) evaluate(ctx context.Context) (float64, error) {
	pcm := audioconv.Int16ToFloat32(s.utterance)

	s.utterance = nil
	s.preroll.Clear()
	s.gate.Reset()

	text, err := s.tr.Transcribe(ctx, pcm)
	if err != nil {
		return 0, fmt.Errorf("transcribe utterance: %w", err)
	}

	score := MatchConfidence(text, s.phrase)
	s.logger.Debug("utterance scored", "text", text, "score", score)

	return score, nil
}

// Reset drops all buffered audio and gate state.
func (s *PhraseScorer) Reset() {
	s.utterance = nil
	s.preroll.Clear()
	s.gate.Reset()
	s.flux.Reset()
}
