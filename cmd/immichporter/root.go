package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"immichporter/pkg/config"
	"immichporter/pkg/logger"
	"immichporter/pkg/store"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	dbPath     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "immichporter",
	Short: "Migrate photo albums from Google Photos into Immich",
	Long: `Immichporter walks your Google Photos albums through a driven browser,
records every photo with its album, owner and taken-at date in a local
SQLite database, and reconciles those records against an Immich server.

A run is resumable: progress is stored per album after every photo, so
an interrupted export picks up exactly where it stopped.

Typical flow:
  immichporter gphotos login      sign in once, session is kept in the profile
  immichporter gphotos albums     collect the album list
  immichporter gphotos photos     walk the albums and record every photo
  immichporter reconcile          match records against Immich assets`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is $HOME/.immichporter.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "path to the SQLite database file")

	rootCmd.SetVersionTemplate(`immichporter {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the configuration, applies global flag overrides and
// initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	return cfg, nil
}

// openStore opens the record store at the configured path.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.Database.Path, logger.GetLogger())
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	return st, nil
}
