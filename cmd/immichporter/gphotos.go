package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"immichporter/pkg/config"
	"immichporter/pkg/gphotos"
	"immichporter/pkg/logger"
	"immichporter/pkg/prompt"
	"immichporter/pkg/session"
	"immichporter/pkg/store"
)

var (
	// gphotos command flags
	maxAlbums    int
	startAlbum   int
	albumFresh   bool
	clearStorage bool
	userDataDir  string
	headless     bool
)

var gphotosCmd = &cobra.Command{
	Use:   "gphotos",
	Short: "Google Photos commands",
	Long:  `Commands that drive a browser session against Google Photos.`,
}

var gphotosLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to Google Photos and keep the session",
	Long: `Opens the browser on Google Photos and waits for you to sign in.
The session is kept in the browser profile directory, so later runs
do not need to sign in again.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScraper(func(ctx context.Context, s *gphotos.Scraper, _ *store.Store) error {
			if err := s.Login(ctx); err != nil {
				return err
			}
			fmt.Println("Signed in. The session is stored in the browser profile.")
			return nil
		})
	},
}

var gphotosAlbumsCmd = &cobra.Command{
	Use:   "albums",
	Short: "Collect the album list from Google Photos",
	Long: `Walks the albums grid and registers every album in the local
database: title, declared item count, shared flag and navigation URL.
Albums already known by title are left untouched.`,
	Example: `  # Collect every album
  immichporter gphotos albums

  # Collect at most 10 albums, starting from the third grid position
  immichporter gphotos albums --max-albums 10 --start-album 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if startAlbum < 1 {
			return fmt.Errorf("start album must be 1 or higher")
		}
		return withScraper(func(ctx context.Context, s *gphotos.Scraper, st *store.Store) error {
			if err := s.Login(ctx); err != nil {
				return err
			}
			albums, err := s.CollectAlbums(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Collected %d new albums\n", len(albums))
			return printStats(ctx, st)
		})
	},
}

var gphotosPhotosCmd = &cobra.Command{
	Use:   "photos",
	Short: "Walk the collected albums and record every photo",
	Long: `Opens each registered album and steps through the photos one by
one, extracting filename, taken-at date and sharer attribution into the
local database. Progress is written after every photo, so an interrupted
run resumes where it stopped.`,
	Example: `  # Process every album that still has unprocessed items
  immichporter gphotos photos

  # Re-walk albums even when the counters say they are complete
  immichporter gphotos photos --fresh`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withScraper(func(ctx context.Context, s *gphotos.Scraper, st *store.Store) error {
			if err := s.Login(ctx); err != nil {
				return err
			}
			run, err := s.ProcessAlbums(ctx, albumFresh)
			if err != nil {
				return err
			}
			fmt.Printf("Processed %d albums, %d new photos\n", run.AlbumsProcessed, run.NewPhotos)
			for _, msg := range run.Errors {
				fmt.Fprintf(os.Stderr, "  error: %s\n", msg)
			}
			return printStats(ctx, st)
		})
	},
}

func init() {
	rootCmd.AddCommand(gphotosCmd)
	gphotosCmd.AddCommand(gphotosLoginCmd)
	gphotosCmd.AddCommand(gphotosAlbumsCmd)
	gphotosCmd.AddCommand(gphotosPhotosCmd)

	for _, cmd := range []*cobra.Command{gphotosLoginCmd, gphotosAlbumsCmd, gphotosPhotosCmd} {
		cmd.Flags().BoolVarP(&clearStorage, "clear-storage", "x", false, "clear browser site storage before starting")
		cmd.Flags().StringVar(&userDataDir, "user-data-dir", "", "browser profile directory")
		cmd.Flags().BoolVar(&headless, "headless", false, "run the browser headless")
	}
	for _, cmd := range []*cobra.Command{gphotosAlbumsCmd, gphotosPhotosCmd} {
		cmd.Flags().IntVarP(&maxAlbums, "max-albums", "m", 0, "maximum number of albums to process (0 for all)")
		cmd.Flags().IntVarP(&startAlbum, "start-album", "s", 1, "start processing from this album position (1-based)")
	}
	gphotosPhotosCmd.Flags().BoolVarP(&albumFresh, "fresh", "f", false, "process albums even when they are marked complete")
}

// withScraper wires config, store, browser session and prompt together,
// runs fn and tears everything down afterwards. SIGINT cancels the
// context so a walk stops after the current photo.
func withScraper(fn func(ctx context.Context, s *gphotos.Scraper, st *store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applySourceFlags(cfg)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	chrome, err := session.NewChrome(session.Config{
		UserDataDir: cfg.Source.UserDataDir,
		Headless:    cfg.Source.Headless,
	}, logger.GetLogger())
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer chrome.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scraper := gphotos.NewScraper(chrome, st, prompt.NewConsole(), cfg, logger.GetLogger())
	return fn(ctx, scraper, st)
}

func applySourceFlags(cfg *config.Config) {
	if maxAlbums > 0 {
		cfg.Source.MaxAlbums = maxAlbums
	}
	if startAlbum > 1 {
		cfg.Source.StartAlbum = startAlbum
	}
	if clearStorage {
		cfg.Source.ClearStorage = true
	}
	if userDataDir != "" {
		cfg.Source.UserDataDir = userDataDir
	}
	if headless {
		cfg.Source.Headless = true
	}
}

// printStats shows the database totals after a command
func printStats(ctx context.Context, st *store.Store) error {
	stats, err := st.GetStats(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\n=== Database Statistics ===")
	fmt.Printf("Total albums: %d\n", stats.TotalAlbums)
	fmt.Printf("Total photos: %d\n", stats.TotalPhotos)
	fmt.Printf("Total users:  %d\n", stats.TotalUsers)
	fmt.Printf("Total errors: %d\n", stats.TotalErrors)
	return nil
}
