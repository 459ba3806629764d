// Package pipeline orchestrates the freeze pipeline: provision the
// environment, upgrade the installer, install dependencies, bundle the
// application, verify the artifact.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pybundle/pybundle/pkg/bundler"
	"github.com/pybundle/pybundle/pkg/logger"
	"github.com/pybundle/pybundle/pkg/pip"
	"github.com/pybundle/pybundle/pkg/process"
	"github.com/pybundle/pybundle/pkg/state"
	"github.com/pybundle/pybundle/pkg/types"
	"github.com/pybundle/pybundle/pkg/venv"
)

// Stage names, in execution order
const (
	StageProvision = "provision"
	StageUpgrade   = "upgrade"
	StageInstall   = "install"
	StageBundle    = "bundle"
	StageVerify    = "verify"
)

// Notifier receives terminal build outcomes
type Notifier interface {
	BuildSucceeded(product string, duration time.Duration)
	BuildFailed(product string, err error)
}

// Options configures a pipeline run
type Options struct {
	Config      *types.Config
	ProjectRoot string
	Runner      process.Runner
	Logger      logger.Logger
	States      *state.Manager // optional
	Notifier    Notifier       // optional

	// SkipDeps skips the installer upgrade and dependency installation,
	// reusing whatever the environment already holds
	SkipDeps bool
}

// Pipeline runs the five stages sequentially, stopping at the first
// failure. No retries, no cleanup of partial state.
type Pipeline struct {
	opts Options
}

// stage couples a name with its action
type stage struct {
	name string
	run  func(ctx context.Context) error
}

// New creates a pipeline from options. Config must already carry
// defaults and be validated.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Run executes the pipeline. The returned error wraps the failing
// tool's exit error so callers can propagate its exit code.
func (p *Pipeline) Run(ctx context.Context) error {
	cfg := p.opts.Config
	root := p.opts.ProjectRoot
	log := p.opts.Logger

	env := venv.NewManager(filepath.Join(root, cfg.VenvDir), p.opts.Runner, p.stageLogger(StageProvision))
	upgrader := pip.NewInstaller(env.Toolchain(), p.opts.Runner, p.stageLogger(StageUpgrade))
	installer := pip.NewInstaller(env.Toolchain(), p.opts.Runner, p.stageLogger(StageInstall))
	freezer := bundler.New(cfg, root, env.Toolchain(), p.opts.Runner, p.stageLogger(StageBundle))

	var artifact ArtifactInfo
	stages := []stage{
		{StageProvision, env.EnsureCreated},
		{StageUpgrade, func(ctx context.Context) error {
			if p.opts.SkipDeps {
				return nil
			}
			return upgrader.SelfUpgrade(ctx)
		}},
		{StageInstall, func(ctx context.Context) error {
			if p.opts.SkipDeps {
				return nil
			}
			return installer.InstallRequirements(ctx, filepath.Join(root, cfg.Requirements))
		}},
		{StageBundle, freezer.Bundle},
		{StageVerify, func(ctx context.Context) error {
			var err error
			artifact, err = VerifyArtifact(filepath.Join(root, cfg.ArtifactDir()))
			return err
		}},
	}

	var rec *state.RunRecord
	if p.opts.States != nil {
		rec = p.opts.States.Begin(cfg.Name)
	}
	start := time.Now()

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return p.finish(rec, s.name, start, err)
		}
		if log != nil {
			log.WithStage(s.name).Debug("Stage starting")
		}
		if err := s.run(ctx); err != nil {
			if log != nil {
				log.WithStage(s.name).Error("Stage failed", logger.WithField("error", err))
			}
			return p.finish(rec, s.name, start, fmt.Errorf("%s: %w", s.name, err))
		}
	}

	duration := time.Since(start)
	if rec != nil {
		rec.Status = types.BuildStatusSucceeded
		rec.Stage = StageVerify
		rec.Duration = duration
		rec.ArtifactPath = artifact.Path
		rec.ArtifactFiles = artifact.Files
		rec.ArtifactBytes = artifact.Bytes
		if err := p.opts.States.Write(rec); err != nil && log != nil {
			log.Warn("Failed to record build state", logger.WithField("error", err))
		}
	}
	if log != nil {
		log.Success(fmt.Sprintf("Build of %s completed in %s", cfg.Name, duration.Round(time.Millisecond)),
			logger.WithField("artifact", artifact.Path),
			logger.WithField("files", artifact.Files))
	}
	if p.opts.Notifier != nil {
		p.opts.Notifier.BuildSucceeded(cfg.Name, duration)
	}
	return nil
}

// finish records a failed run and reports the error unchanged
func (p *Pipeline) finish(rec *state.RunRecord, stageName string, start time.Time, err error) error {
	if rec != nil {
		rec.Status = types.BuildStatusFailed
		rec.Stage = stageName
		rec.Duration = time.Since(start)
		rec.LastError = err.Error()
		rec.FailureCount++
		if werr := p.opts.States.Write(rec); werr != nil && p.opts.Logger != nil {
			p.opts.Logger.Warn("Failed to record build state", logger.WithField("error", werr))
		}
	}
	if p.opts.Notifier != nil {
		p.opts.Notifier.BuildFailed(p.opts.Config.Name, err)
	}
	return err
}

func (p *Pipeline) stageLogger(name string) logger.Logger {
	if p.opts.Logger == nil {
		return nil
	}
	return p.opts.Logger.WithStage(name)
}
