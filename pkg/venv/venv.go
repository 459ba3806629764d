// Package venv provisions an isolated Python environment and resolves the
// tool binaries inside it.
package venv

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/pybundle/pybundle/pkg/logger"
	"github.com/pybundle/pybundle/pkg/process"
)

// ErrInterpreterNotFound indicates no host Python interpreter is on PATH
var ErrInterpreterNotFound = errors.New("no python interpreter found on PATH")

// Toolchain holds the resolved binaries inside an environment directory.
// Stages receive it explicitly instead of relying on shell activation.
type Toolchain struct {
	Python      string
	Pip         string
	PyInstaller string
}

// Manager provisions and inspects one environment directory
type Manager struct {
	dir    string
	runner process.Runner
	logger logger.Logger
}

// NewManager creates an environment manager for the given directory
func NewManager(dir string, runner process.Runner, log logger.Logger) *Manager {
	return &Manager{dir: dir, runner: runner, logger: log}
}

// Dir returns the environment directory path
func (m *Manager) Dir() string {
	return m.dir
}

// Exists reports whether the environment directory is already present
func (m *Manager) Exists() bool {
	info, err := os.Stat(m.dir)
	return err == nil && info.IsDir()
}

// EnsureCreated creates the environment when it does not exist yet.
// An existing directory is reused untouched.
func (m *Manager) EnsureCreated(ctx context.Context) error {
	if m.Exists() {
		if m.logger != nil {
			m.logger.Info("Reusing existing environment", logger.WithField("dir", m.dir))
		}
		return nil
	}

	python, err := FindInterpreter()
	if err != nil {
		return err
	}

	if m.logger != nil {
		m.logger.Info("Creating environment",
			logger.WithField("dir", m.dir),
			logger.WithField("interpreter", python))
	}

	inv := process.Invocation{Name: python, Args: []string{"-m", "venv", m.dir}}
	if err := m.runner.Run(ctx, inv); err != nil {
		return fmt.Errorf("environment creation failed: %w", err)
	}
	return nil
}

// Toolchain resolves the tool binaries inside the environment directory.
// Resolution is purely path arithmetic; the binaries may not exist until
// EnsureCreated and the installer steps have run.
func (m *Manager) Toolchain() Toolchain {
	binDir := filepath.Join(m.dir, "bin")
	ext := ""
	if runtime.GOOS == "windows" {
		binDir = filepath.Join(m.dir, "Scripts")
		ext = ".exe"
	}
	return Toolchain{
		Python:      filepath.Join(binDir, "python"+ext),
		Pip:         filepath.Join(binDir, "pip"+ext),
		PyInstaller: filepath.Join(binDir, "pyinstaller"+ext),
	}
}

// FindInterpreter locates a host Python interpreter on PATH. It prefers
// python3, falls back to python, and on Windows to the py launcher.
func FindInterpreter() (string, error) {
	candidates := []string{"python3", "python"}
	if runtime.GOOS == "windows" {
		candidates = []string{"python", "py"}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", ErrInterpreterNotFound
}
