package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pybundle/pybundle/pkg/config"
	"github.com/pybundle/pybundle/pkg/types"
)

func newInitCmd() *cobra.Command {
	var force bool
	var name string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a starter configuration for this project",
		Long: `Write a pybundle.config.json describing the project in the current
directory. Existing configuration is never overwritten unless --force
is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(name, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing configuration")
	cmd.Flags().StringVar(&name, "name", "", "product name (default: directory name)")

	return cmd
}

func runInit(name string, force bool) error {
	mgr := config.NewManager()

	if existing := mgr.FindConfigFile(projectRoot); existing != "" && !force {
		printWarning("Configuration already exists: " + existing)
		return fmt.Errorf("configuration already exists (use --force to overwrite)")
	}

	cfg := types.DefaultConfig()
	if name != "" {
		cfg.Name = name
	} else if abs, err := filepath.Abs(projectRoot); err == nil {
		cfg.Name = filepath.Base(abs)
	}

	// Prefer an entry point that actually exists
	for _, candidate := range []string{"main.py", "app.py", "run.py"} {
		if _, err := os.Stat(filepath.Join(projectRoot, candidate)); err == nil {
			cfg.EntryPoint = candidate
			break
		}
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	path := filepath.Join(projectRoot, config.FileName+".json")
	if err := mgr.SaveConfig(path, cfg); err != nil {
		return err
	}

	printSuccess("Created " + path)
	if _, err := os.Stat(filepath.Join(projectRoot, cfg.Requirements)); err != nil {
		printInfo(fmt.Sprintf("No %s found; create one listing your dependencies", cfg.Requirements))
	}
	return nil
}
