package wakeword

import (
	"context"
	"errors"
	"testing"
)

const testChunkSize = 256

type fakeTranscriber struct {
	text  string
	err   error
	calls int
	heard []float32
}

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []float32) (string, error) {
	f.calls++
	f.heard = pcm
	return f.text, f.err
}

// noiseChunk builds a deterministic pseudo-noise chunk. Different seeds
// give different contents, so consecutive chunks have a small but
// non-zero spectral flux, like real room tone.
func noiseChunk(seed uint32, amp int16) []int16 {
	chunk := make([]int16, testChunkSize)
	x := seed
	for i := range chunk {
		x = x*1664525 + 1013904223
		chunk[i] = int16(int32(x>>20)%int32(amp)*2 - int32(amp))
	}
	return chunk
}

// utteranceChunks builds room tone, a loud burst, then room tone again:
// enough to open and close the voice gate exactly once. The quiet
// chunks alternate between two fixed patterns so the quiet-flux
// baseline stays constant.
func utteranceChunks() [][]int16 {
	qa := noiseChunk(1, 10)
	qb := noiseChunk(2, 10)
	la := noiseChunk(3, 8000)
	lb := noiseChunk(4, 8000)

	return [][]int16{qa, qb, qa, qb, la, lb, la, qa, qb, qa, qb}
}

func newTestScorer(t *testing.T, tr Transcriber) *PhraseScorer {
	t.Helper()

	s, err := NewPhraseScorer(Config{
		Phrase:      "hey earshot",
		Transcriber: tr,
		ChunkSize:   testChunkSize,
		QuietChunks: 2,
	})
	if err != nil {
		t.Fatalf("NewPhraseScorer: %v", err)
	}
	return s
}

func TestPhraseScorer_DetectsUtterance(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{text: "hey earshot"}
	s := newTestScorer(t, tr)

	var final float64
	var scoredAt int
	for i, chunk := range utteranceChunks() {
		score, err := s.Score(context.Background(), chunk)
		if err != nil {
			t.Fatalf("Score(chunk %d): %v", i, err)
		}
		if score > 0 {
			if final > 0 {
				t.Fatalf("got a second positive score at chunk %d", i)
			}
			final = score
			scoredAt = i
		}
	}

	if tr.calls != 1 {
		t.Fatalf("transcriber called %d times, want 1", tr.calls)
	}
	if final != 1.0 {
		t.Errorf("utterance score = %f, want 1.0 for an exact transcript", final)
	}
	if scoredAt < 7 {
		t.Errorf("utterance scored at chunk %d, want after the burst ended", scoredAt)
	}
	if len(tr.heard) == 0 {
		t.Fatal("transcriber received no audio")
	}
	// The utterance must include the pre-roll audio from before onset.
	if len(tr.heard) < 6*testChunkSize {
		t.Errorf("transcriber received %d samples, want at least %d (burst plus pre-roll)",
			len(tr.heard), 6*testChunkSize)
	}
}

func TestPhraseScorer_SilenceScoresZero(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{text: "hey earshot"}
	s := newTestScorer(t, tr)

	qa := noiseChunk(1, 10)
	qb := noiseChunk(2, 10)
	for i := 0; i < 50; i++ {
		chunk := qa
		if i%2 == 1 {
			chunk = qb
		}
		score, err := s.Score(context.Background(), chunk)
		if err != nil {
			t.Fatalf("Score: %v", err)
		}
		if score != 0 {
			t.Fatalf("room tone scored %f at chunk %d, want 0", score, i)
		}
	}

	if tr.calls != 0 {
		t.Errorf("transcriber called %d times on room tone, want 0", tr.calls)
	}
}

func TestPhraseScorer_TranscriberErrorPropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("model exploded")
	tr := &fakeTranscriber{err: wantErr}
	s := newTestScorer(t, tr)

	var sawErr error
	for _, chunk := range utteranceChunks() {
		if _, err := s.Score(context.Background(), chunk); err != nil {
			sawErr = err
			break
		}
	}

	if !errors.Is(sawErr, wantErr) {
		t.Errorf("Score error = %v, want wrapped %v", sawErr, wantErr)
	}
}

func TestPhraseScorer_ResetDropsOpenUtterance(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{text: "hey earshot"}
	s := newTestScorer(t, tr)

	// Feed room tone and the start of a burst, then reset mid-utterance.
	chunks := utteranceChunks()
	for _, chunk := range chunks[:6] {
		if _, err := s.Score(context.Background(), chunk); err != nil {
			t.Fatalf("Score: %v", err)
		}
	}

	s.Reset()

	// Trailing quiet must not complete the abandoned utterance.
	for _, chunk := range chunks[7:] {
		score, err := s.Score(context.Background(), chunk)
		if err != nil {
			t.Fatalf("Score after reset: %v", err)
		}
		if score != 0 {
			t.Errorf("score after reset = %f, want 0", score)
		}
	}

	if tr.calls != 0 {
		t.Errorf("transcriber called %d times, want 0 after reset", tr.calls)
	}
}

func TestNewPhraseScorer_Validation(t *testing.T) {
	t.Parallel()

	tr := &fakeTranscriber{}

	if _, err := NewPhraseScorer(Config{Transcriber: tr, ChunkSize: 1280}); err == nil {
		t.Error("empty phrase should be rejected")
	}
	if _, err := NewPhraseScorer(Config{Phrase: "hey", ChunkSize: 1280}); err == nil {
		t.Error("nil transcriber should be rejected")
	}
	if _, err := NewPhraseScorer(Config{Phrase: "hey", Transcriber: tr, ChunkSize: 0}); err == nil {
		t.Error("zero chunk size should be rejected")
	}
}
