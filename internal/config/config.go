// Package config provides the configuration schema and loader for
// earshot. Flags override file values, so every field here also has a
// sensible default.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"earshot/internal/ctl"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration so YAML values can be written as "2s"
// or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration, typically loaded from a YAML file
// with [Load] or [LoadFromReader].
type Config struct {
	LogLevel LogLevel       `yaml:"log_level"`
	Wake     WakeConfig     `yaml:"wake"`
	Models   ModelsConfig   `yaml:"models"`
	Feedback FeedbackConfig `yaml:"feedback"`
	TTS      TTSConfig      `yaml:"tts"`
	Control  ControlConfig  `yaml:"control"`
	Publish  PublishConfig  `yaml:"publish"`
}

// WakeConfig tunes the wake word pipeline.
type WakeConfig struct {
	// Phrase is the wake word to listen for, e.g. "hey earshot".
	Phrase string `yaml:"phrase"`

	// Threshold is the minimum confidence that counts as a
	// detection. A score equal to the threshold fires.
	Threshold float64 `yaml:"threshold"`

	// ChunkSize is the number of samples read from the microphone
	// per iteration.
	ChunkSize int `yaml:"chunk_size"`

	// Cooldown suppresses repeat detections for this long after a
	// hit. Zero disables the cooldown.
	Cooldown Duration `yaml:"cooldown"`
}

// ModelsConfig controls where speech models live and come from.
type ModelsConfig struct {
	// Dir is the local directory models are downloaded into.
	Dir string `yaml:"dir"`

	// BaseURL is the remote root models are fetched from.
	BaseURL string `yaml:"base_url"`

	// Model is the default model name or path.
	Model string `yaml:"model"`
}

// FeedbackConfig controls audible acknowledgement of detections.
type FeedbackConfig struct {
	Enabled bool `yaml:"enabled"`

	// Chime is an optional mp3 played on detection instead of the
	// built-in tones.
	Chime string `yaml:"chime"`
}

// TTSConfig controls spoken responses.
type TTSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Voice   string `yaml:"voice"`
}

// ControlConfig locates the unix control socket.
type ControlConfig struct {
	Socket string `yaml:"socket"`
}

// PublishConfig connects detections to a websocket hub. Publishing is
// off when URL is empty.
type PublishConfig struct {
	URL  string `yaml:"url"`
	From string `yaml:"from"`
}

// Default returns a Config with every field set to its default value.
func Default() *Config {
	return &Config{
		LogLevel: LogInfo,
		Wake: WakeConfig{
			Phrase:    "hey earshot",
			Threshold: 0.5,
			ChunkSize: 1280,
			Cooldown:  Duration(2 * time.Second),
		},
		Models: ModelsConfig{
			Dir:   "models",
			Model: "tiny.en",
		},
		Feedback: FeedbackConfig{Enabled: true},
		TTS:      TTSConfig{Voice: "en"},
		Control:  ControlConfig{Socket: ctl.DefaultSocketPath},
		Publish:  PublishConfig{From: "earshot"},
	}
}

// Load reads the YAML configuration file at path and returns a
// validated [Config]. A missing file is not an error: defaults apply.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults
// and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It
// returns a joined error listing all failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Wake.Phrase == "" {
		errs = append(errs, errors.New("wake.phrase is required"))
	}
	if cfg.Wake.Threshold < 0 || cfg.Wake.Threshold > 1 {
		errs = append(errs, fmt.Errorf("wake.threshold %v is out of range [0, 1]", cfg.Wake.Threshold))
	}
	if cfg.Wake.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("wake.chunk_size must be positive, got %d", cfg.Wake.ChunkSize))
	}
	if cfg.Wake.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("wake.cooldown must not be negative, got %s", cfg.Wake.Cooldown.Std()))
	}
	if cfg.Models.Model == "" {
		errs = append(errs, errors.New("models.model is required"))
	}
	if cfg.Publish.URL != "" && cfg.Publish.From == "" {
		errs = append(errs, errors.New("publish.from is required when publish.url is set"))
	}

	return errors.Join(errs...)
}
