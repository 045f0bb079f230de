package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"immichporter/pkg/store"
)

var dbNotFinished bool

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the local record database",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(_ context.Context, st *store.Store) error {
			fmt.Println("Database initialized")
			return nil
		})
	},
}

var dbAlbumsCmd = &cobra.Command{
	Use:   "albums",
	Short: "Show albums in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store) error {
			albums, err := st.ListAlbums(ctx, store.ListAlbumsOptions{NotFinished: dbNotFinished})
			if err != nil {
				return err
			}
			if len(albums) == 0 {
				msg := "No albums found"
				if dbNotFinished {
					msg += " that are not fully processed"
				}
				fmt.Println(msg)
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tITEMS\tPROCESSED\tSHARED\tCREATED")
			for _, a := range albums {
				pct := 0
				if a.Items > 0 {
					pct = a.ProcessedItems * 100 / a.Items
				}
				shared := "no"
				if a.Shared {
					shared = "yes"
				}
				fmt.Fprintf(w, "%d\t%s\t%d\t%d (%d%%)\t%s\t%s\n",
					a.ID, a.Title, a.Items, a.ProcessedItems, pct, shared,
					a.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var dbUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Show users in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store) error {
			users, err := st.ListUsers(ctx)
			if err != nil {
				return err
			}
			if len(users) == 0 {
				fmt.Println("No users found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSOURCE NAME\tIMMICH NAME\tIMMICH EMAIL\tIMPORT\tCREATED")
			for _, u := range users {
				importFlag := "no"
				if u.AddToImmich {
					importFlag = "yes"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					u.ID, u.SourceName,
					orNA(u.ImmichName.String, u.ImmichName.Valid),
					orNA(u.ImmichEmail.String, u.ImmichEmail.Valid),
					importFlag,
					u.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		})
	},
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, st *store.Store) error {
			stats, err := st.GetStats(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Total albums: %d\n", stats.TotalAlbums)
			fmt.Printf("Total photos: %d\n", stats.TotalPhotos)
			fmt.Printf("Total users:  %d\n", stats.TotalUsers)
			fmt.Printf("Total errors: %d\n", stats.TotalErrors)

			if len(stats.Albums) > 0 {
				fmt.Println()
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ALBUM\tITEMS\tPHOTOS\tERRORS")
				for _, a := range stats.Albums {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", a.Title, a.Items, a.PhotoCount, a.ErrorCount)
				}
				return w.Flush()
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbInitCmd)
	dbCmd.AddCommand(dbAlbumsCmd)
	dbCmd.AddCommand(dbUsersCmd)
	dbCmd.AddCommand(dbStatsCmd)

	dbAlbumsCmd.Flags().BoolVarP(&dbNotFinished, "not-finished", "n", false, "show only albums that are not fully processed")
}

// withStore wires config and the record store for database commands
func withStore(fn func(ctx context.Context, st *store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	return fn(context.Background(), st)
}

func orNA(s string, ok bool) string {
	if !ok || s == "" {
		return "N/A"
	}
	return s
}
