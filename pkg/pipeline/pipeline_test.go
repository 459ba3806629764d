package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/pybundle/pybundle/pkg/logger"
	"github.com/pybundle/pybundle/pkg/pip"
	"github.com/pybundle/pybundle/pkg/pipeline"
	"github.com/pybundle/pybundle/pkg/process"
	"github.com/pybundle/pybundle/pkg/state"
	"github.com/pybundle/pybundle/pkg/types"
)

// fakeRunner records invocations and lets the test simulate tool side
// effects and failures per invocation.
type fakeRunner struct {
	invocations []process.Invocation
	onRun       func(inv process.Invocation) error
}

func (f *fakeRunner) Run(ctx context.Context, inv process.Invocation) error {
	f.invocations = append(f.invocations, inv)
	if f.onRun != nil {
		return f.onRun(inv)
	}
	return nil
}

func (f *fakeRunner) names() []string {
	var out []string
	for _, inv := range f.invocations {
		out = append(out, filepath.Base(inv.Name))
	}
	return out
}

type fakeNotifier struct {
	succeeded int
	failed    int
	lastErr   error
}

func (n *fakeNotifier) BuildSucceeded(product string, d time.Duration) { n.succeeded++ }
func (n *fakeNotifier) BuildFailed(product string, err error) {
	n.failed++
	n.lastErr = err
}

// newProject lays out a minimal project: entry point, manifest, and an
// already provisioned environment directory.
func newProject(t *testing.T) (string, *types.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := types.DefaultConfig()

	if err := os.WriteFile(filepath.Join(root, cfg.EntryPoint), []byte("print('hi')\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, cfg.Requirements), []byte("PySide6\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, cfg.VenvDir), 0755); err != nil {
		t.Fatal(err)
	}
	return root, cfg
}

// simulateBundle creates the expected artifact directory the way a
// successful bundler run would.
func simulateBundle(t *testing.T, root string, cfg *types.Config) func(process.Invocation) error {
	t.Helper()
	return func(inv process.Invocation) error {
		if strings.HasPrefix(filepath.Base(inv.Name), "pyinstaller") {
			dir := filepath.Join(root, cfg.ArtifactDir())
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			return os.WriteFile(filepath.Join(dir, cfg.Name), []byte("binary"), 0755)
		}
		return nil
	}
}

func TestRunHappyPath(t *testing.T) {
	root, cfg := newProject(t)
	runner := &fakeRunner{}
	runner.onRun = simulateBundle(t, root, cfg)
	notif := &fakeNotifier{}
	states := state.NewManager(root)

	p := pipeline.New(pipeline.Options{
		Config:      cfg,
		ProjectRoot: root,
		Runner:      runner,
		States:      states,
		Notifier:    notif,
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	// Environment exists, so provisioning runs no command; the three
	// tool invocations follow in order.
	names := runner.names()
	if len(names) != 3 {
		t.Fatalf("invocations = %v, want 3", names)
	}
	if names[0] != "python" && names[0] != "python.exe" {
		t.Errorf("first invocation = %q, want environment python (pip upgrade)", names[0])
	}
	if !strings.HasPrefix(names[1], "pip") {
		t.Errorf("second invocation = %q, want pip", names[1])
	}
	if !strings.HasPrefix(names[2], "pyinstaller") {
		t.Errorf("third invocation = %q, want pyinstaller", names[2])
	}

	rec, err := states.Read(cfg.Name)
	if err != nil {
		t.Fatalf("reading state: %v", err)
	}
	if rec.Status != types.BuildStatusSucceeded {
		t.Errorf("recorded status = %q", rec.Status)
	}
	if rec.ArtifactFiles != 1 {
		t.Errorf("artifact files = %d, want 1", rec.ArtifactFiles)
	}
	if notif.succeeded != 1 || notif.failed != 0 {
		t.Errorf("notifications: succeeded=%d failed=%d", notif.succeeded, notif.failed)
	}
}

func TestRunVerificationFailure(t *testing.T) {
	root, cfg := newProject(t)
	runner := &fakeRunner{} // bundler "succeeds" but creates nothing
	notif := &fakeNotifier{}
	states := state.NewManager(root)

	p := pipeline.New(pipeline.Options{
		Config:      cfg,
		ProjectRoot: root,
		Runner:      runner,
		States:      states,
		Notifier:    notif,
	})

	err := p.Run(context.Background())
	if !errors.Is(err, pipeline.ErrArtifactMissing) {
		t.Fatalf("error = %v, want ErrArtifactMissing", err)
	}

	rec, rerr := states.Read(cfg.Name)
	if rerr != nil {
		t.Fatalf("reading state: %v", rerr)
	}
	if rec.Status != types.BuildStatusFailed {
		t.Errorf("recorded status = %q", rec.Status)
	}
	if rec.Stage != pipeline.StageVerify {
		t.Errorf("recorded stage = %q, want verify", rec.Stage)
	}
	if notif.failed != 1 {
		t.Errorf("failure notification not sent")
	}
}

func TestRunInstallFailureAbortsBeforeBundle(t *testing.T) {
	root, cfg := newProject(t)
	runner := &fakeRunner{
		onRun: func(inv process.Invocation) error {
			if filepath.Base(inv.Name) == "pip" || filepath.Base(inv.Name) == "pip.exe" {
				return errors.New("resolution impossible")
			}
			return nil
		},
	}
	states := state.NewManager(root)

	p := pipeline.New(pipeline.Options{
		Config:      cfg,
		ProjectRoot: root,
		Runner:      runner,
		States:      states,
	})

	if err := p.Run(context.Background()); err == nil {
		t.Fatal("expected install failure")
	}

	for _, name := range runner.names() {
		if strings.HasPrefix(name, "pyinstaller") {
			t.Error("bundler invoked after failed install")
		}
	}
	if _, err := os.Stat(filepath.Join(root, cfg.ArtifactDir())); !os.IsNotExist(err) {
		t.Error("artifact directory created despite aborted pipeline")
	}

	rec, err := states.Read(cfg.Name)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Stage != pipeline.StageInstall {
		t.Errorf("recorded stage = %q, want install", rec.Stage)
	}
	if rec.FailureCount != 1 {
		t.Errorf("failure count = %d", rec.FailureCount)
	}
}

func TestRunMissingManifestAbortsBeforeBundle(t *testing.T) {
	root, cfg := newProject(t)
	if err := os.Remove(filepath.Join(root, cfg.Requirements)); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	p := pipeline.New(pipeline.Options{
		Config:      cfg,
		ProjectRoot: root,
		Runner:      runner,
	})

	err := p.Run(context.Background())
	if !errors.Is(err, pip.ErrManifestNotFound) {
		t.Fatalf("error = %v, want ErrManifestNotFound", err)
	}
	for _, name := range runner.names() {
		if strings.HasPrefix(name, "pyinstaller") {
			t.Error("bundler invoked despite missing manifest")
		}
	}
}

func TestRunSkipDeps(t *testing.T) {
	root, cfg := newProject(t)
	runner := &fakeRunner{}
	runner.onRun = simulateBundle(t, root, cfg)

	p := pipeline.New(pipeline.Options{
		Config:      cfg,
		ProjectRoot: root,
		Runner:      runner,
		SkipDeps:    true,
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	names := runner.names()
	if len(names) != 1 || !strings.HasPrefix(names[0], "pyinstaller") {
		t.Errorf("invocations = %v, want bundler only", names)
	}
}

func TestRunEndToEndEmptyManifest(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("interpreter discovery differs on windows")
	}

	root := t.TempDir()
	cfg := types.DefaultConfig()
	if err := os.WriteFile(filepath.Join(root, cfg.EntryPoint), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}
	// Empty manifest: zero dependencies declared
	if err := os.WriteFile(filepath.Join(root, cfg.Requirements), []byte(""), 0644); err != nil {
		t.Fatal(err)
	}

	// Fake host interpreter on PATH for environment creation
	binDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(binDir, "python3"), []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", binDir)

	runner := &fakeRunner{
		onRun: func(inv process.Invocation) error {
			// Simulate venv creation and bundling side effects
			if len(inv.Args) >= 2 && inv.Args[0] == "-m" && inv.Args[1] == "venv" {
				return os.MkdirAll(inv.Args[2], 0755)
			}
			if strings.HasPrefix(filepath.Base(inv.Name), "pyinstaller") {
				return os.MkdirAll(filepath.Join(root, cfg.ArtifactDir()), 0755)
			}
			return nil
		},
	}

	opts := pipeline.Options{Config: cfg, ProjectRoot: root, Runner: runner}

	if err := pipeline.New(opts).Run(context.Background()); err != nil {
		t.Fatalf("first Run() error: %v", err)
	}
	creations := 0
	for _, inv := range runner.invocations {
		if len(inv.Args) >= 2 && inv.Args[0] == "-m" && inv.Args[1] == "venv" {
			creations++
		}
	}
	if creations != 1 {
		t.Fatalf("environment creations = %d, want 1", creations)
	}

	// Second run reuses the environment: no second creation side effect
	runner.invocations = nil
	if err := pipeline.New(opts).Run(context.Background()); err != nil {
		t.Fatalf("second Run() error: %v", err)
	}
	for _, inv := range runner.invocations {
		if len(inv.Args) >= 2 && inv.Args[0] == "-m" && inv.Args[1] == "venv" {
			t.Error("environment recreated on second run")
		}
	}
}

func TestRunLogsStagesUnderTheirOwnPrefix(t *testing.T) {
	root, cfg := newProject(t)
	runner := &fakeRunner{}
	runner.onRun = simulateBundle(t, root, cfg)

	var buf bytes.Buffer
	p := pipeline.New(pipeline.Options{
		Config:      cfg,
		ProjectRoot: root,
		Runner:      runner,
		Logger:      logger.CreateLoggerWithOutput("debug", &buf),
	})

	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "[upgrade] Upgrading package installer") {
		t.Errorf("installer upgrade not logged under the upgrade stage:\n%s", output)
	}
	if !strings.Contains(output, "[install] Installing dependencies") {
		t.Errorf("dependency install not logged under the install stage:\n%s", output)
	}
	if !strings.Contains(output, "[bundle] Bundling application") {
		t.Errorf("bundling not logged under the bundle stage:\n%s", output)
	}
}

func TestRunCancelledContext(t *testing.T) {
	root, cfg := newProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	p := pipeline.New(pipeline.Options{Config: cfg, ProjectRoot: root, Runner: runner})

	if err := p.Run(ctx); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(runner.invocations) != 0 {
		t.Error("stages ran despite cancelled context")
	}
}
