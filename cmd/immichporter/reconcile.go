package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"immichporter/internal/reconcile"
	"immichporter/pkg/logger"
)

var (
	reconcileWorkers   int
	reconcileBatchSize int
	reconcileRateLimit int
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Match recorded photos against Immich assets",
	Long: `Searches the Immich server for every recorded photo that has no
asset assigned yet. A photo is matched when exactly one asset shares
its filename and capture window; ambiguous or missing results leave
the photo untouched so a later run can retry.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if reconcileWorkers > 0 {
			cfg.Reconcile.Workers = reconcileWorkers
		}
		if reconcileBatchSize > 0 {
			cfg.Reconcile.BatchSize = reconcileBatchSize
		}
		if reconcileRateLimit > 0 {
			cfg.Reconcile.RequestsPerMinute = reconcileRateLimit
		}

		client, err := immichClient(cfg)
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("immich server unreachable: %w", err)
		}

		summary, err := reconcile.New(st, client, &cfg.Reconcile, logger.GetLogger()).Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("\nScanned:   %d\n", summary.Scanned)
		fmt.Printf("Matched:   %d\n", summary.Matched)
		fmt.Printf("Unmatched: %d\n", summary.Unmatched)
		fmt.Printf("Ambiguous: %d\n", summary.Ambiguous)
		if summary.Errors > 0 {
			fmt.Printf("Errors:    %d\n", summary.Errors)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().IntVar(&reconcileWorkers, "workers", 0, "number of concurrent search workers")
	reconcileCmd.Flags().IntVar(&reconcileBatchSize, "batch-size", 0, "matches written per transaction")
	reconcileCmd.Flags().IntVar(&reconcileRateLimit, "rate-limit", 0, "maximum API requests per minute")
	reconcileCmd.Flags().BoolVar(&immichInsecure, "insecure", false, "skip TLS certificate verification")
}
