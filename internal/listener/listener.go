// Package listener runs the real-time detection loop: read one audio
// chunk, score it, report a detection when the score clears the
// threshold, repeat until the context is cancelled or the source runs
// dry.
package listener

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"earshot/internal/wakeword"
)

// Detection is one wake-word hit.
type Detection struct {
	Phrase string
	Score  float64
	At     time.Time
	Seq    int
}

// Stats is a snapshot of a running listener, served over the control
// socket.
type Stats struct {
	Detections int
	Uptime     time.Duration
}

type Config struct {
	Source Source
	Scorer wakeword.Scorer
	// Phrase is only carried into Detection events for display.
	Phrase    string
	Threshold float64
	// Cooldown suppresses repeat detections right after a hit.
	Cooldown    time.Duration
	OnDetection func(Detection)
	Logger      *slog.Logger
}

type Listener struct {
	source      Source
	scorer      wakeword.Scorer
	phrase      string
	threshold   float64
	cooldown    time.Duration
	onDetection func(Detection)
	logger      *slog.Logger

	now       func() time.Time
	closeOnce sync.Once

	mu         sync.Mutex
	detections int
	lastHit    time.Time
	started    time.Time
}

func New(cfg *Config) (*Listener, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if cfg.Source == nil {
		return nil, errors.New("source is nil")
	}
	if cfg.Scorer == nil {
		return nil, errors.New("scorer is nil")
	}
	if cfg.Threshold < 0.0 || cfg.Threshold > 1.0 {
		return nil, fmt.Errorf("threshold %g is outside [0.0, 1.0]", cfg.Threshold)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Listener{
		source:      cfg.Source,
		scorer:      cfg.Scorer,
		phrase:      cfg.Phrase,
		threshold:   cfg.Threshold,
		cooldown:    cfg.Cooldown,
		onDetection: cfg.OnDetection,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Run drives the loop until ctx is cancelled, the source reports EOF,
// or a read fails. The source is closed exactly once on every exit
// path. A cancelled context is the designed way to stop and is not an
// error.
func (l *Listener) Run(ctx context.Context) error {
	defer l.close()

	l.mu.Lock()
	l.started = l.now()
	l.mu.Unlock()

	l.logger.Info("listening", "phrase", l.phrase, "threshold", l.threshold)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("listener stopped", "detections", l.Stats().Detections)
			return nil
		default:
		}

		chunk, err := l.source.ReadChunk()
		if errors.Is(err, io.EOF) {
			l.logger.Info("audio source drained", "detections", l.Stats().Detections)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read audio chunk: %w", err)
		}

		score, err := l.scorer.Score(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("score chunk: %w", err)
		}

		if score >= l.threshold {
			l.hit(score)
		}
	}
}

func (l *Listener) hit(score float64) {
	now := l.now()

	l.mu.Lock()
	if l.cooldown > 0 && !l.lastHit.IsZero() && now.Sub(l.lastHit) < l.cooldown {
		l.mu.Unlock()
		return
	}
	l.lastHit = now
	l.detections++
	det := Detection{
		Phrase: l.phrase,
		Score:  score,
		At:     now,
		Seq:    l.detections,
	}
	l.mu.Unlock()

	l.logger.Info("wake word detected",
		"phrase", det.Phrase, "score", fmt.Sprintf("%.3f", det.Score), "count", det.Seq)

	if l.onDetection != nil {
		l.onDetection(det)
	}
}

// Stats reports the detection count and uptime so far.
func (l *Listener) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	var uptime time.Duration
	if !l.started.IsZero() {
		uptime = l.now().Sub(l.started)
	}

	return Stats{
		Detections: l.detections,
		Uptime:     uptime,
	}
}

func (l *Listener) close() {
	l.closeOnce.Do(func() {
		if err := l.source.Close(); err != nil {
			l.logger.Warn("closing audio source", "err", err)
		}
	})
}
