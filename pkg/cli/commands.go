package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pybundle/pybundle/pkg/archive"
	"github.com/pybundle/pybundle/pkg/config"
	"github.com/pybundle/pybundle/pkg/logger"
	"github.com/pybundle/pybundle/pkg/notifier"
	"github.com/pybundle/pybundle/pkg/pipeline"
	"github.com/pybundle/pybundle/pkg/process"
	"github.com/pybundle/pybundle/pkg/state"
	"github.com/pybundle/pybundle/pkg/types"
	"github.com/pybundle/pybundle/pkg/watcher"
)

// buildOptions carries flag overrides for one build invocation
type buildOptions struct {
	SkipDeps     bool
	Notify       bool
	Name         string
	Entry        string
	Requirements string
	VenvDir      string
}

func newBuildCmd() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Run the freeze pipeline once",
		Long: `Provision the environment, install dependencies, bundle the
application, and verify the artifact. Equivalent to running pybundle
with no arguments.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.SkipDeps, "skip-deps", false, "skip installer upgrade and dependency installation")
	cmd.Flags().BoolVar(&opts.Notify, "notify", false, "send a desktop notification on completion")
	cmd.Flags().StringVar(&opts.Name, "name", "", "override the product name")
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "override the entry-point path")
	cmd.Flags().StringVar(&opts.Requirements, "requirements", "", "override the dependency manifest path")
	cmd.Flags().StringVar(&opts.VenvDir, "venv", "", "override the environment directory")

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the last recorded build result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func newCleanCmd() *cobra.Command {
	var removeEnv bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove build artifacts and state",
		Long:  `Remove the bundler's output and work directories and recorded build state.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(removeEnv)
		},
	}
	cmd.Flags().BoolVar(&removeEnv, "env", false, "also remove the environment directory")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the project configuration without building",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate()
		},
	}
}

func newWatchCmd() *cobra.Command {
	var opts buildOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the bundle whenever source files change",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts)
		},
	}
	cmd.Flags().BoolVar(&opts.SkipDeps, "skip-deps", false, "skip installer upgrade and dependency installation on rebuilds")
	cmd.Flags().BoolVar(&opts.Notify, "notify", false, "send a desktop notification per rebuild")
	return cmd
}

func newArchiveCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Pack the verified bundle into a tar.xz distributable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runArchive(output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "archive path (default: <dist>/<name>.tar.xz)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("📦 pybundle v%s\n", version)
		},
	}
}

// loadProjectConfig loads the project config and applies environment and
// flag overrides, in that order: file < PYBUNDLE_* env < flag.
func loadProjectConfig(opts buildOptions) (*types.Config, error) {
	mgr := config.NewManager()

	var cfg *types.Config
	var err error
	if cfgFile != "" {
		cfg, err = mgr.LoadConfig(cfgFile)
	} else {
		cfg, err = mgr.LoadOrDefault(projectRoot)
	}
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if opts.Name != "" {
		cfg.Name = opts.Name
	}
	if opts.Entry != "" {
		cfg.EntryPoint = opts.Entry
	}
	if opts.Requirements != "" {
		cfg.Requirements = opts.Requirements
	}
	if opts.VenvDir != "" {
		cfg.VenvDir = opts.VenvDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides merges PYBUNDLE_* environment variables over file
// values. Idempotent viper setup so direct callers work without the
// cobra initialization hook having run.
func applyEnvOverrides(cfg *types.Config) {
	viper.SetEnvPrefix("PYBUNDLE")
	viper.AutomaticEnv()

	if v := viper.GetString("name"); v != "" {
		cfg.Name = v
	}
	if v := viper.GetString("entrypoint"); v != "" {
		cfg.EntryPoint = v
	}
	if v := viper.GetString("requirements"); v != "" {
		cfg.Requirements = v
	}
	if v := viper.GetString("venv"); v != "" {
		cfg.VenvDir = v
	}
}

// openRunLog opens the append-only run log under .pybundle/logs. A nil
// writer is returned when the log cannot be created; the build carries
// on without it.
func openRunLog(product string) *os.File {
	logDir := filepath.Join(projectRoot, ".pybundle", "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(logDir, product+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil
	}
	fmt.Fprintf(f, "\n=== Run started at %s ===\n", time.Now().Format("2006-01-02 15:04:05"))
	return f
}

// notifierConfig merges the config file's notification block with the
// --notify flag
func notifierConfig(cfg *types.Config, opts buildOptions) notifier.Config {
	out := notifier.Config{Enabled: opts.Notify}
	if cfg.Notifications != nil {
		if cfg.Notifications.Enabled {
			out.Enabled = true
		}
		out.SuccessSound = cfg.Notifications.SuccessSound
		out.FailureSound = cfg.Notifications.FailureSound
	}
	return out
}

func newPipeline(cfg *types.Config, opts buildOptions, log logger.Logger, logSink *os.File) *pipeline.Pipeline {
	// Avoid handing the runner a typed-nil writer
	var sink io.Writer
	if logSink != nil {
		sink = logSink
	}

	return pipeline.New(pipeline.Options{
		Config:      cfg,
		ProjectRoot: projectRoot,
		Runner:      process.NewExecRunner(log, sink),
		Logger:      log,
		States:      state.NewManager(projectRoot),
		Notifier:    notifier.New(notifierConfig(cfg, opts), log),
		SkipDeps:    opts.SkipDeps,
	})
}

func runBuild(opts buildOptions) error {
	cfg, err := loadProjectConfig(opts)
	if err != nil {
		return err
	}

	log := logger.CreateLogger("", verbosity)
	logSink := openRunLog(cfg.Name)
	if logSink != nil {
		defer logSink.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newPipeline(cfg, opts, log, logSink).Run(ctx); err != nil {
		if errors.Is(err, pipeline.ErrArtifactMissing) {
			printError(fmt.Sprintf("Build failed: output folder %s was not created", cfg.ArtifactDir()))
		}
		return err
	}

	printSuccess(fmt.Sprintf("Build finished: %s", filepath.Join(projectRoot, cfg.ArtifactDir())))
	return nil
}

func runStatus() error {
	cfg, err := loadProjectConfig(buildOptions{})
	if err != nil {
		return err
	}

	rec, err := state.NewManager(projectRoot).Read(cfg.Name)
	if errors.Is(err, state.ErrNoState) {
		printInfo(fmt.Sprintf("No builds recorded for %s yet", cfg.Name))
		return nil
	}
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Product:\t%s\n", rec.Product)
	fmt.Fprintf(w, "Status:\t%s\n", rec.Status)
	fmt.Fprintf(w, "Stage:\t%s\n", rec.Stage)
	fmt.Fprintf(w, "Started:\t%s\n", rec.StartedAt.Format(time.RFC1123))
	fmt.Fprintf(w, "Duration:\t%s\n", rec.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Runs:\t%d (%d failed)\n", rec.RunCount, rec.FailureCount)
	if rec.ArtifactPath != "" {
		fmt.Fprintf(w, "Artifact:\t%s (%d files, %d bytes)\n", rec.ArtifactPath, rec.ArtifactFiles, rec.ArtifactBytes)
	}
	if rec.LastError != "" {
		fmt.Fprintf(w, "Last error:\t%s\n", rec.LastError)
	}
	return w.Flush()
}

func runClean(removeEnv bool) error {
	cfg, err := loadProjectConfig(buildOptions{})
	if err != nil {
		return err
	}

	targets := []string{
		filepath.Join(projectRoot, cfg.DistDir),
		filepath.Join(projectRoot, cfg.WorkDir),
		filepath.Join(projectRoot, ".pybundle"),
	}
	if removeEnv {
		targets = append(targets, filepath.Join(projectRoot, cfg.VenvDir))
	}

	for _, t := range targets {
		if _, err := os.Stat(t); os.IsNotExist(err) {
			continue
		}
		if err := os.RemoveAll(t); err != nil {
			return fmt.Errorf("failed to remove %s: %w", t, err)
		}
		printInfo("Removed " + t)
	}
	printSuccess("Clean complete")
	return nil
}

func runValidate() error {
	cfg, err := loadProjectConfig(buildOptions{})
	if err != nil {
		printError(fmt.Sprintf("Configuration invalid: %v", err))
		return err
	}

	entry := filepath.Join(projectRoot, cfg.EntryPoint)
	if _, err := os.Stat(entry); err != nil {
		printWarning(fmt.Sprintf("Entry point %s does not exist", cfg.EntryPoint))
	}
	manifest := filepath.Join(projectRoot, cfg.Requirements)
	if _, err := os.Stat(manifest); err != nil {
		printWarning(fmt.Sprintf("Manifest %s does not exist", cfg.Requirements))
	}

	printSuccess(fmt.Sprintf("Configuration valid: %s (entry %s)", cfg.Name, cfg.EntryPoint))
	return nil
}

func runWatch(opts buildOptions) error {
	cfg, err := loadProjectConfig(opts)
	if err != nil {
		return err
	}

	log := logger.CreateLogger("", verbosity)
	logSink := openRunLog(cfg.Name)
	if logSink != nil {
		defer logSink.Close()
	}

	p := newPipeline(cfg, opts, log, logSink)
	w := watcher.New(cfg, projectRoot, log, func(ctx context.Context) error {
		return p.Run(ctx)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printInfo("Watching for changes, press Ctrl-C to stop")
	return w.Run(ctx)
}

func runArchive(output string) error {
	cfg, err := loadProjectConfig(buildOptions{})
	if err != nil {
		return err
	}

	artifact := filepath.Join(projectRoot, cfg.ArtifactDir())
	if _, err := pipeline.VerifyArtifact(artifact); err != nil {
		printError("No verified bundle to archive; run pybundle build first")
		return err
	}

	if output == "" {
		output = filepath.Join(projectRoot, cfg.DistDir, cfg.Name+".tar.xz")
	}
	if err := archive.Create(artifact, output); err != nil {
		return err
	}

	printSuccess("Archive written: " + output)
	return nil
}
