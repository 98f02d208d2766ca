package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/lexivox/internal/config"
)

func writeConfigFile(t *testing.T, path, engine string) {
	t.Helper()
	content := "discord:\n  token: Bot abc\nplayback:\n  engine: " + engine + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "gtranslate")

	changed := make(chan config.ConfigDiff, 1)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		changed <- config.Diff(old, new)
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if got := w.Current().Playback.Engine; got != "gtranslate" {
		t.Fatalf("initial engine = %q, want gtranslate", got)
	}

	// Mtime granularity can swallow rapid rewrites, so nudge it explicitly.
	writeConfigFile(t, path, "edge")
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-changed:
		if !d.PlaybackEngineChanged || d.NewPlaybackEngine != "edge" {
			t.Errorf("diff = %+v, want playback engine change to edge", d)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report the change in time")
	}

	if got := w.Current().Playback.Engine; got != "edge" {
		t.Errorf("Current().Playback.Engine = %q, want edge", got)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfigFile(t, path, "gtranslate")

	w, err := config.NewWatcher(path, nil, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("discord: [broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	time.Sleep(100 * time.Millisecond)

	if got := w.Current().Discord.Token; got != "Bot abc" {
		t.Errorf("Current().Discord.Token = %q, want old config retained", got)
	}
}
