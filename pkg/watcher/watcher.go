// Package watcher re-runs the freeze pipeline when source files change
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/pybundle/pybundle/pkg/logger"
	"github.com/pybundle/pybundle/pkg/types"
)

// DefaultSettlingDelay is applied when the config sets none. Editors
// produce bursts of events; a rebuild starts only after they settle.
const DefaultSettlingDelay = 800 * time.Millisecond

// Watcher debounces file events and triggers rebuilds
type Watcher struct {
	projectRoot string
	paths       []string
	settling    time.Duration
	logger      logger.Logger
	rebuild     func(ctx context.Context) error
}

// New creates a watcher over the project's entry point, manifest, and
// any configured extra paths.
func New(cfg *types.Config, projectRoot string, log logger.Logger, rebuild func(ctx context.Context) error) *Watcher {
	paths := []string{cfg.EntryPoint, cfg.Requirements}
	settling := DefaultSettlingDelay
	if cfg.Watch != nil {
		paths = append(paths, cfg.Watch.Paths...)
		if cfg.Watch.SettlingDelay > 0 {
			settling = time.Duration(cfg.Watch.SettlingDelay) * time.Millisecond
		}
	}
	return &Watcher{
		projectRoot: projectRoot,
		paths:       paths,
		settling:    settling,
		logger:      log,
		rebuild:     rebuild,
	}
}

// Run watches until the context is cancelled. The first rebuild runs
// immediately; later ones are triggered by settled change bursts.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	watched := 0
	for _, p := range w.paths {
		full := filepath.Join(w.projectRoot, p)
		if _, err := os.Stat(full); err != nil {
			if w.logger != nil {
				w.logger.Warn("Watch path missing, skipping", logger.WithField("path", p))
			}
			continue
		}
		if err := fsw.Add(full); err != nil {
			return fmt.Errorf("failed to watch %s: %w", p, err)
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no watchable paths configured")
	}

	// Watch the project root too so recreated files (editor save via
	// rename) keep triggering.
	if err := fsw.Add(w.projectRoot); err != nil {
		return fmt.Errorf("failed to watch project root: %w", err)
	}

	if w.logger != nil {
		w.logger.Info("Watching for changes",
			logger.WithField("paths", strings.Join(w.paths, ", ")),
			logger.WithField("settling", w.settling))
	}

	trigger := make(chan struct{}, 1)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-fsw.Events:
				if !ok {
					return nil
				}
				if !w.relevant(ev) {
					continue
				}
				if w.logger != nil {
					w.logger.Debug("Change detected", logger.WithField("file", ev.Name))
				}
				if timer == nil {
					timer = time.NewTimer(w.settling)
					timerC = timer.C
				} else {
					timer.Reset(w.settling)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return nil
				}
				if w.logger != nil {
					w.logger.Warn("Watcher error", logger.WithField("error", err))
				}
			case <-timerC:
				select {
				case trigger <- struct{}{}:
				default:
				}
			}
		}
	})

	g.Go(func() error {
		// Initial build before waiting for changes
		w.runBuild(ctx)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-trigger:
				w.runBuild(ctx)
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runBuild executes one rebuild; failures are reported and watching
// continues.
func (w *Watcher) runBuild(ctx context.Context) {
	if err := w.rebuild(ctx); err != nil {
		if w.logger != nil {
			w.logger.Error("Rebuild failed", logger.WithField("error", err))
		}
	}
}

// relevant filters root-directory noise down to the watched paths
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	dir := filepath.Clean(filepath.Dir(ev.Name))
	if dir != filepath.Clean(w.projectRoot) {
		// Event from an explicitly watched file or directory
		return true
	}
	base := filepath.Base(ev.Name)
	for _, p := range w.paths {
		if filepath.Base(p) == base {
			return true
		}
	}
	return false
}
