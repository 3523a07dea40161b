// Package recorder captures labelled wake-word samples as 16 kHz mono
// WAV files, organized for training: one directory per phrase with
// positive and negative takes kept apart.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	wave "github.com/zenwerk/go-wave"

	"earshot/internal/listener"
)

const sampleRate = 16000

// Labels a take can carry.
const (
	LabelPositive = "positive"
	LabelNegative = "negative"
)

type Config struct {
	Fs     afero.Fs
	Source listener.Source
	// OutDir is the root of the sample tree, default "recordings".
	OutDir string
	// Phrase names the wake word being collected, e.g. "hey earshot".
	Phrase string
	Label  string
	Logger *slog.Logger
}

type Recorder struct {
	fs     afero.Fs
	source listener.Source
	outDir string
	phrase string
	label  string
	logger *slog.Logger

	now func() time.Time
}

func New(cfg *Config) (*Recorder, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("source is nil")
	}
	if cfg.Phrase == "" {
		return nil, errors.New("phrase is empty")
	}
	if cfg.Label != LabelPositive && cfg.Label != LabelNegative {
		return nil, fmt.Errorf("label must be %q or %q, got %q", LabelPositive, LabelNegative, cfg.Label)
	}

	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "recordings"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		fs:     fs,
		source: cfg.Source,
		outDir: outDir,
		phrase: cfg.Phrase,
		label:  cfg.Label,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Record captures one take of the given duration and writes it as a
// WAV file, returning the file path.
func (r *Recorder) Record(ctx context.Context, duration time.Duration) (string, error) {
	if duration <= 0 {
		return "", fmt.Errorf("duration must be positive, got %s", duration)
	}

	needed := int(float64(sampleRate) * duration.Seconds())

	samples := make([]int16, 0, needed)
	for len(samples) < needed {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		chunk, err := r.source.ReadChunk()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read audio chunk: %w", err)
		}
		samples = append(samples, chunk...)
	}

	if len(samples) == 0 {
		return "", errors.New("no audio captured")
	}
	if len(samples) > needed {
		samples = samples[:needed]
	}

	return r.save(samples)
}

func (r *Recorder) save(samples []int16) (string, error) {
	slug := phraseSlug(r.phrase)
	dir := filepath.Join(r.outDir, slug, r.label)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	name := fmt.Sprintf("%s_%s.wav", slug, r.now().Format("20060102-150405"))
	path := filepath.Join(dir, name)

	f, err := r.fs.Create(path)
	if err != nil {
		return "", err
	}

	w, err := wave.NewWriter(wave.WriterParam{
		Out:           f,
		Channel:       1,
		SampleRate:    sampleRate,
		BitsPerSample: 16,
	})
	if err != nil {
		f.Close()
		return "", err
	}

	if _, err := w.WriteSample16(samples); err != nil {
		w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	r.logger.Info("take saved", "path", path, "samples", len(samples))

	return path, nil
}

// phraseSlug turns "Hey Earshot" into "hey_earshot" for stable paths.
func phraseSlug(phrase string) string {
	return strings.ToLower(strings.Join(strings.Fields(phrase), "_"))
}
