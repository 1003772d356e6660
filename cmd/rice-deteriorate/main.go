// Package main provides the rice-deteriorate binary.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ricesearch/rice-deteriorate/internal/config"
	"github.com/ricesearch/rice-deteriorate/internal/pkg/logger"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rice-deteriorate",
		Short: "Deteriorate TREC runs in controlled rank intervals",
		Long: `rice-deteriorate swaps and replaces documents inside rank intervals of a TREC run
to simulate a better or worse system, then measures how far the result moved.

Run 'rice-deteriorate deteriorate' for a single modified run.
Run 'rice-deteriorate grid' to sweep swap and replacement counts across modes.
Run 'rice-deteriorate --help' for available commands.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("format", "text", "output format (text, json)")

	rootCmd.AddCommand(
		deteriorateCmd(),
		gridCmd(),
		evaluateCmd(),
		simulateCmd(),
		eventsCmd(),
		versionCmd(),
	)

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rice-deteriorate %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
		},
	}
}

// setup loads the config named by --config and builds the logger. The returned
// function closes the log file, if one was opened.
func setup(cmd *cobra.Command, override func(*config.Config)) (*config.Config, *logger.Logger, func(), error) {
	configPath, _ := cmd.Flags().GetString("config")
	verbose, _ := cmd.Flags().GetBool("verbose")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Override from flags
	if verbose {
		cfg.Log.Level = "debug"
		cfg.Deterioration.Verbose = true
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, err
	}

	var w io.Writer = os.Stderr
	closer := func() {}
	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return nil, nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w = f
		closer = func() { _ = f.Close() }
	}

	return cfg, logger.NewWithWriter(cfg.Log.Level, cfg.Log.Format, w), closer, nil
}

func outputFormat(cmd *cobra.Command) string {
	format, _ := cmd.Flags().GetString("format")
	return format
}

// openOutput returns stdout for an empty path.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
