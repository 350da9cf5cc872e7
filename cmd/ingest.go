package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Scrape and qualify leads for a search query",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		query, _ := cmd.Flags().GetString("query")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := initRunner(st).Ingest(ctx, query, limit)
		if err != nil {
			return err
		}

		fmt.Printf("run %s: scraped %d, accepted %d", res.RunID, res.Scraped, res.Accepted)
		if res.Relaxed {
			fmt.Print(" (relaxed filter)")
		}
		if res.PauseReason != "" {
			fmt.Printf(" [scrape paused: %s]", res.PauseReason)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	f := ingestCmd.Flags()
	f.String("query", "", "search query, e.g. \"dentista campinas\"")
	f.Int("limit", 40, "maximum candidates to scrape")
	_ = ingestCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(ingestCmd)
}
