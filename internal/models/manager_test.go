package models

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
)

func newTestManager(t *testing.T, status int, body string) (*Manager, afero.Fs, *int32) {
	t.Helper()

	var fetches int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	fs := afero.NewMemMapFs()
	m := New(Config{
		Fs:      fs,
		Client:  srv.Client(),
		BaseURL: srv.URL,
		Dir:     "models",
	})

	return m, fs, &fetches
}

func TestEnsure_DownloadsMissingModelOnce(t *testing.T) {
	m, fs, fetches := newTestManager(t, http.StatusOK, "ggml bytes")

	local, err := m.Ensure(context.Background(), "tiny.en")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}

	if want := filepath.Join("models", "ggml-tiny.en.bin"); local != want {
		t.Errorf("Ensure returned %q, want %q", local, want)
	}
	if got := atomic.LoadInt32(fetches); got != 1 {
		t.Errorf("fetch count = %d, want 1", got)
	}

	data, err := afero.ReadFile(fs, local)
	if err != nil {
		t.Fatalf("reading downloaded model: %v", err)
	}
	if string(data) != "ggml bytes" {
		t.Errorf("model content = %q, want %q", data, "ggml bytes")
	}

	// No partial file may remain.
	if ok, _ := afero.Exists(fs, local+".part"); ok {
		t.Error("partial download file left behind")
	}
}

func TestEnsure_PresentModelIssuesNoFetch(t *testing.T) {
	m, fs, fetches := newTestManager(t, http.StatusOK, "unused")

	local := filepath.Join("models", "ggml-tiny.en.bin")
	if err := afero.WriteFile(fs, local, []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := m.Ensure(context.Background(), "tiny.en")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got != local {
		t.Errorf("Ensure returned %q, want %q", got, local)
	}
	if n := atomic.LoadInt32(fetches); n != 0 {
		t.Errorf("fetch count = %d, want 0 for a present artifact", n)
	}
}

func TestEnsure_DirectPathShortCircuits(t *testing.T) {
	m, fs, fetches := newTestManager(t, http.StatusOK, "unused")

	if err := afero.WriteFile(fs, "custom/my-model.bin", []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := m.Ensure(context.Background(), "custom/my-model.bin")
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if got != "custom/my-model.bin" {
		t.Errorf("Ensure returned %q, want the path unchanged", got)
	}
	if n := atomic.LoadInt32(fetches); n != 0 {
		t.Errorf("fetch count = %d, want 0", n)
	}
}

func TestEnsure_UnknownModel(t *testing.T) {
	m, _, fetches := newTestManager(t, http.StatusOK, "unused")

	_, err := m.Ensure(context.Background(), "no-such-model")
	if !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Ensure error = %v, want ErrUnknownModel", err)
	}
	if n := atomic.LoadInt32(fetches); n != 0 {
		t.Errorf("fetch count = %d, want 0 for an unknown name", n)
	}
}

func TestResolve_TouchesNoNetwork(t *testing.T) {
	m, fs, fetches := newTestManager(t, http.StatusOK, "unused")

	got, err := m.Resolve("small.en")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join("models", "ggml-small.en.bin"); got != want {
		t.Errorf("Resolve returned %q, want %q", got, want)
	}
	if ok, _ := afero.Exists(fs, got); ok {
		t.Error("Resolve must not create the artifact")
	}
	if n := atomic.LoadInt32(fetches); n != 0 {
		t.Errorf("fetch count = %d, want 0", n)
	}

	if _, err := m.Resolve("no-such-model"); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Resolve error = %v, want ErrUnknownModel", err)
	}
}

func TestEnsure_ServerErrorSurfacesAndLeavesNoFile(t *testing.T) {
	m, fs, _ := newTestManager(t, http.StatusInternalServerError, "boom")

	_, err := m.Ensure(context.Background(), "tiny.en")
	if err == nil {
		t.Fatal("Ensure should fail on a 500 response")
	}

	local := filepath.Join("models", "ggml-tiny.en.bin")
	if ok, _ := afero.Exists(fs, local); ok {
		t.Error("failed download must not leave a model file")
	}
	if ok, _ := afero.Exists(fs, local+".part"); ok {
		t.Error("failed download must not leave a partial file")
	}
}

func TestList_ReportsPresence(t *testing.T) {
	m, fs, _ := newTestManager(t, http.StatusOK, "unused")

	if err := afero.WriteFile(fs, filepath.Join("models", "ggml-base.en.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := m.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 6 {
		t.Fatalf("List returned %d entries, want 6", len(entries))
	}

	byAlias := make(map[string]Entry, len(entries))
	for _, e := range entries {
		byAlias[e.Alias] = e
	}
	if !byAlias["base.en"].Present {
		t.Error("base.en should be reported present")
	}
	if byAlias["tiny"].Present {
		t.Error("tiny should be reported absent")
	}
}
