// Package pip drives the package installer inside an environment
package pip

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/pybundle/pybundle/pkg/logger"
	"github.com/pybundle/pybundle/pkg/process"
	"github.com/pybundle/pybundle/pkg/venv"
)

// ErrManifestNotFound indicates the requirements file does not exist
var ErrManifestNotFound = errors.New("requirements manifest not found")

// Installer runs pip commands against one environment
type Installer struct {
	toolchain venv.Toolchain
	runner    process.Runner
	logger    logger.Logger
}

// NewInstaller creates an installer bound to a resolved toolchain
func NewInstaller(tc venv.Toolchain, runner process.Runner, log logger.Logger) *Installer {
	return &Installer{toolchain: tc, runner: runner, logger: log}
}

// SelfUpgrade upgrades pip itself inside the environment. Invoked through
// the environment's python so pip can replace its own executable.
func (i *Installer) SelfUpgrade(ctx context.Context) error {
	if i.logger != nil {
		i.logger.Info("Upgrading package installer")
	}
	inv := process.Invocation{
		Name: i.toolchain.Python,
		Args: []string{"-m", "pip", "install", "--upgrade", "pip"},
	}
	if err := i.runner.Run(ctx, inv); err != nil {
		return fmt.Errorf("installer upgrade failed: %w", err)
	}
	return nil
}

// InstallRequirements installs every dependency declared in the manifest
func (i *Installer) InstallRequirements(ctx context.Context, manifest string) error {
	if _, err := os.Stat(manifest); err != nil {
		return fmt.Errorf("%w: %s", ErrManifestNotFound, manifest)
	}

	if i.logger != nil {
		i.logger.Info("Installing dependencies", logger.WithField("manifest", manifest))
	}
	inv := process.Invocation{
		Name: i.toolchain.Pip,
		Args: []string{"install", "-r", manifest},
	}
	if err := i.runner.Run(ctx, inv); err != nil {
		return fmt.Errorf("dependency installation failed: %w", err)
	}
	return nil
}
