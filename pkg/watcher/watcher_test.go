package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pybundle/pybundle/pkg/types"
	"github.com/pybundle/pybundle/pkg/watcher"
)

func newWatchProject(t *testing.T) (string, *types.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := types.DefaultConfig()
	cfg.Watch = &types.WatchConfig{SettlingDelay: 50}

	if err := os.WriteFile(filepath.Join(root, cfg.EntryPoint), []byte("print('v1')\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, cfg.Requirements), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}
	return root, cfg
}

func TestWatcherRunsInitialBuildAndRebuildsOnChange(t *testing.T) {
	root, cfg := newWatchProject(t)

	builds := make(chan struct{}, 16)
	w := watcher.New(cfg, root, nil, func(ctx context.Context) error {
		builds <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Initial build fires without any file change
	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("initial build never ran")
	}

	// A change to the entry point triggers a rebuild after settling
	if err := os.WriteFile(filepath.Join(root, cfg.EntryPoint), []byte("print('v2')\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("rebuild never ran after change")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() after cancel = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatcherFailedRebuildKeepsWatching(t *testing.T) {
	root, cfg := newWatchProject(t)

	builds := make(chan struct{}, 16)
	w := watcher.New(cfg, root, nil, func(ctx context.Context) error {
		builds <- struct{}{}
		return os.ErrPermission // every build "fails"
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("initial build never ran")
	}

	if err := os.WriteFile(filepath.Join(root, cfg.Requirements), []byte("PySide6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-builds:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher stopped after failed build")
	}
}

func TestWatcherNoWatchablePaths(t *testing.T) {
	root := t.TempDir() // no entry point, no manifest
	cfg := types.DefaultConfig()

	w := watcher.New(cfg, root, nil, func(ctx context.Context) error { return nil })
	if err := w.Run(context.Background()); err == nil {
		t.Error("expected error when nothing can be watched")
	}
}
