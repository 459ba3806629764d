// Package cli provides the command-line interface for pybundle
package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	projectRoot string
	verbosity   string
	version     string
)

// rootCmd represents the base command. Invoking pybundle with no
// arguments runs the default freeze pipeline.
var rootCmd = &cobra.Command{
	Use:   "pybundle",
	Short: "Freeze Python applications into standalone bundles",
	Long: `📦 pybundle - Deterministic freeze builds for Python applications

pybundle provisions an isolated environment, installs declared
dependencies, and invokes PyInstaller to produce a standalone,
directly runnable artifact. Running with no arguments builds the
project in the current directory with its default configuration.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("📦 pybundle v%s\n", version)
			return nil
		}
		// Zero-argument invocation: run the build pipeline
		return runBuild(buildOptions{})
	},
}

// Execute runs the CLI
func Execute(v string) error {
	version = v

	// Initialize the root command explicitly (avoiding init())
	initializeRootCommand()

	return rootCmd.Execute()
}

// initializeRootCommand sets up the root command and its flags.
func initializeRootCommand() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: pybundle.config.{json,yaml,toml})")
	rootCmd.PersistentFlags().StringVar(&projectRoot, "root", ".", "project root directory")
	rootCmd.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")

	rootCmd.Flags().Bool("version", false, "Print version information and quit")

	// Subcommands
	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCleanCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newArchiveCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(projectRoot)
		viper.SetConfigName("pybundle.config")
	}

	viper.SetEnvPrefix("PYBUNDLE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbosity == "debug" {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
		}
	}
}

// Helper functions

func printSuccess(message string) {
	fmt.Printf("📦 %s %s\n", color.GreenString("[pybundle]"), message)
}

func printError(message string) {
	fmt.Fprintf(os.Stderr, "📦 %s %s\n", color.RedString("[pybundle]"), message)
}

func printInfo(message string) {
	fmt.Printf("📦 %s %s\n", color.CyanString("[pybundle]"), message)
}

func printWarning(message string) {
	fmt.Printf("📦 %s %s\n", color.YellowString("[pybundle]"), message)
}
