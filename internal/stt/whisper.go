// Package stt wraps the whisper.cpp Go bindings behind the small
// transcription surface the wake-word pipeline needs.
package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type Options struct {
	Language      string // "auto", "en", ...
	Threads       int    // <=0 means NumCPU
	BeamSize      int    // 0 keeps the greedy default
	InitialPrompt string
}

type Transcriber struct {
	model whisper.Model
	opt   Options
}

// Load opens a GGML model file. The returned Transcriber owns the model
// and must be closed.
func Load(modelPath string, opt Options) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("empty model path")
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", modelPath, err)
	}

	if opt.Language == "" {
		opt.Language = "en"
	}

	return &Transcriber{model: model, opt: opt}, nil
}

func (t *Transcriber) Close() error {
	if t.model == nil {
		return nil
	}
	return t.model.Close()
}

// Transcribe runs pcm (mono float32 at 16 kHz, range [-1, 1]) through the
// model and returns the joined segment text.
func (t *Transcriber) Transcribe(ctx context.Context, pcm []float32) (string, error) {
	if t.model == nil {
		return "", errors.New("transcriber is closed")
	}
	if len(pcm) == 0 {
		return "", errors.New("no audio samples")
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("new whisper context: %w", err)
	}

	if err := wctx.SetLanguage(t.opt.Language); err != nil {
		return "", fmt.Errorf("set language %q: %w", t.opt.Language, err)
	}

	threads := t.opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if t.opt.BeamSize > 0 {
		wctx.SetBeamSize(t.opt.BeamSize)
	}
	if t.opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(t.opt.InitialPrompt)
	}

	if err := wctx.Process(pcm, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process: %w", err)
	}

	var parts []string
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		seg, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("next segment: %w", err)
		}
		parts = append(parts, strings.TrimSpace(seg.Text))
	}

	return strings.Join(parts, " "), nil
}
