// Package bundler invokes PyInstaller to freeze an application into a
// standalone artifact.
package bundler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pybundle/pybundle/pkg/logger"
	"github.com/pybundle/pybundle/pkg/process"
	"github.com/pybundle/pybundle/pkg/types"
	"github.com/pybundle/pybundle/pkg/venv"
)

// Bundler freezes one configured application. Config paths are relative
// to the project root; the tool runs with the root as working directory.
type Bundler struct {
	cfg         *types.Config
	projectRoot string
	toolchain   venv.Toolchain
	runner      process.Runner
	logger      logger.Logger
}

// New creates a bundler for the given configuration and toolchain
func New(cfg *types.Config, projectRoot string, tc venv.Toolchain, runner process.Runner, log logger.Logger) *Bundler {
	return &Bundler{cfg: cfg, projectRoot: projectRoot, toolchain: tc, runner: runner, logger: log}
}

// Args computes the bundler command line for the configuration.
// Exposed so callers and tests can inspect the exact invocation.
func (b *Bundler) Args() []string {
	args := []string{"--noconfirm"}
	if b.cfg.Clean == nil || *b.cfg.Clean {
		args = append(args, "--clean")
	}
	if b.cfg.OneDir == nil || *b.cfg.OneDir {
		args = append(args, "--onedir")
	} else {
		args = append(args, "--onefile")
	}
	if b.cfg.Windowed == nil || *b.cfg.Windowed {
		args = append(args, "--windowed")
	}
	args = append(args, "--name", b.cfg.Name)
	if b.cfg.DistDir != types.DefaultDistDir {
		args = append(args, "--distpath", b.cfg.DistDir)
	}
	if b.cfg.WorkDir != types.DefaultWorkDir {
		args = append(args, "--workpath", b.cfg.WorkDir)
	}
	args = append(args, b.cfg.ExtraArgs...)
	args = append(args, b.cfg.EntryPoint)
	return args
}

// Bundle runs the bundler. The entry point must exist; everything else
// is left to the tool, whose exit status propagates on failure.
func (b *Bundler) Bundle(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(b.projectRoot, b.cfg.EntryPoint)); err != nil {
		return fmt.Errorf("entry point not found: %s", b.cfg.EntryPoint)
	}

	if b.logger != nil {
		b.logger.Info("Bundling application",
			logger.WithField("name", b.cfg.Name),
			logger.WithField("entry", b.cfg.EntryPoint))
	}

	inv := process.Invocation{Name: b.toolchain.PyInstaller, Args: b.Args(), Dir: b.projectRoot}
	if err := b.runner.Run(ctx, inv); err != nil {
		return fmt.Errorf("bundling failed: %w", err)
	}
	return nil
}
