package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/funnel"
)

var cycleCmd = &cobra.Command{
	Use:   "cycle",
	Short: "Run one full funnel cycle",
	Long:  "Runs one pass of the funnel: optional ingest, initial outreach, follow-ups, offers, and the stale-lead sweep. Intended to be driven by an external scheduler.",
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
		runner := initRunner(st)

		if query != "" {
			res, err := runner.Ingest(ctx, query, limit)
			if err != nil {
				// A failed scrape still leaves outbound work to do.
				zap.L().Error("cycle: ingest failed", zap.Error(err))
			} else {
				fmt.Printf("ingest: scraped %d, accepted %d\n", res.Scraped, res.Accepted)
			}
		}

		stages := []struct {
			name string
			run  func() (*funnel.SendReport, error)
		}{
			{"initial", func() (*funnel.SendReport, error) { return runner.SendInitialOutreach(ctx) }},
			{"followups", func() (*funnel.SendReport, error) { return runner.SendFollowups(ctx) }},
			{"offers", func() (*funnel.SendReport, error) { return runner.SendOffers(ctx) }},
		}
		for _, stage := range stages {
			rep, err := stage.run()
			if err != nil {
				return err
			}
			fmt.Printf("%s: sent %d, skipped %d, failed %d\n",
				stage.name, rep.Sent, rep.Skipped, rep.Failed)
		}

		closed, err := runner.CloseStale(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("sweep: closed %d\n", len(closed))
		return nil
	},
}

func init() {
	f := cycleCmd.Flags()
	f.String("query", "", "search query to ingest before sending (optional)")
	f.Int("limit", 40, "maximum candidates to scrape")

	rootCmd.AddCommand(cycleCmd)
}
