// Package models keeps the GGML speech models the detector runs on
// present on local disk, fetching missing ones from the upstream model
// repository on first use.
package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
)

// ErrUnknownModel is returned when a name is neither an existing file
// nor a known model alias.
var ErrUnknownModel = errors.New("unknown model")

// DefaultBaseURL is where known models are fetched from.
const DefaultBaseURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"

// known maps short aliases to upstream artifact names.
var known = map[string]string{
	"tiny":     "ggml-tiny.bin",
	"tiny.en":  "ggml-tiny.en.bin",
	"base":     "ggml-base.bin",
	"base.en":  "ggml-base.en.bin",
	"small":    "ggml-small.bin",
	"small.en": "ggml-small.en.bin",
}

type Config struct {
	Fs      afero.Fs
	Client  *http.Client
	BaseURL string
	// Dir is the local directory model artifacts live in.
	Dir    string
	Logger *slog.Logger
}

type Manager struct {
	fs      afero.Fs
	client  *http.Client
	baseURL string
	dir     string
	logger  *slog.Logger
}

func New(cfg Config) *Manager {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Dir == "" {
		cfg.Dir = "models"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		fs:      cfg.Fs,
		client:  cfg.Client,
		baseURL: cfg.BaseURL,
		dir:     cfg.Dir,
		logger:  cfg.Logger,
	}
}

// Resolve maps name to a local path without touching the network. name
// may be a filesystem path to an existing artifact or a known alias;
// the returned path may not exist yet for an alias.
func (m *Manager) Resolve(name string) (string, error) {
	if ok, err := afero.Exists(m.fs, name); err != nil {
		return "", err
	} else if ok {
		return name, nil
	}

	file, ok := known[name]
	if !ok {
		return "", fmt.Errorf("%w: %q is not a file or a known alias", ErrUnknownModel, name)
	}
	return filepath.Join(m.dir, file), nil
}

// Ensure makes sure the named model is on disk and returns its local
// path. A missing aliased artifact is downloaded once. Download
// failures are returned to the caller, never retried.
func (m *Manager) Ensure(ctx context.Context, name string) (string, error) {
	local, err := m.Resolve(name)
	if err != nil {
		return "", err
	}

	if ok, err := afero.Exists(m.fs, local); err != nil {
		return "", err
	} else if ok {
		return local, nil
	}

	if err := m.download(ctx, filepath.Base(local), local); err != nil {
		return "", err
	}

	return local, nil
}

func (m *Manager) download(ctx context.Context, file, local string) error {
	url := m.baseURL + "/" + path.Clean(file)

	m.logger.Info("downloading model", "url", url, "to", local)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	if err := m.fs.MkdirAll(m.dir, 0o755); err != nil {
		return err
	}

	// Write to a partial file first so an interrupted download never
	// leaves a valid-looking artifact behind.
	part := local + ".part"
	f, err := m.fs.Create(part)
	if err != nil {
		return err
	}

	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		m.fs.Remove(part)
		return fmt.Errorf("download %s: %w", url, err)
	}

	if err := m.fs.Rename(part, local); err != nil {
		m.fs.Remove(part)
		return err
	}

	m.logger.Info("model downloaded", "file", local, "bytes", n)

	return nil
}

// Entry describes one known model and whether it is present locally.
type Entry struct {
	Alias   string
	File    string
	Present bool
}

// List reports every known model alias in sorted order.
func (m *Manager) List() ([]Entry, error) {
	aliases := make([]string, 0, len(known))
	for alias := range known {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	entries := make([]Entry, 0, len(aliases))
	for _, alias := range aliases {
		file := known[alias]
		present, err := afero.Exists(m.fs, filepath.Join(m.dir, file))
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Alias: alias, File: file, Present: present})
	}

	return entries, nil
}
