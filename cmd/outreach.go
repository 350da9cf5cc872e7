package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/funnel"
)

var outreachCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Send outbound batches",
	Long:  "Commands for the three outbound stages: initial consent requests, follow-ups, and priced offers.",
}

func runBatch(cmd *cobra.Command, run func(context.Context, *funnel.Runner) (*funnel.SendReport, error)) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	rep, err := run(ctx, initRunner(st))
	if err != nil {
		return err
	}
	fmt.Printf("examined %d: sent %d, skipped %d, failed %d\n",
		rep.Examined, rep.Sent, rep.Skipped, rep.Failed)
	return nil
}

var outreachInitialCmd = &cobra.Command{
	Use:   "initial",
	Short: "Send first consent requests to new leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBatch(cmd, func(ctx context.Context, r *funnel.Runner) (*funnel.SendReport, error) {
			return r.SendInitialOutreach(ctx)
		})
	},
}

var outreachFollowupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Send due consent and offer follow-ups",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBatch(cmd, func(ctx context.Context, r *funnel.Runner) (*funnel.SendReport, error) {
			return r.SendFollowups(ctx)
		})
	},
}

var outreachOffersCmd = &cobra.Command{
	Use:   "offers",
	Short: "Publish demos and send priced offers to consented leads",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runBatch(cmd, func(ctx context.Context, r *funnel.Runner) (*funnel.SendReport, error) {
			return r.SendOffers(ctx)
		})
	},
}

func init() {
	outreachCmd.AddCommand(outreachInitialCmd)
	outreachCmd.AddCommand(outreachFollowupsCmd)
	outreachCmd.AddCommand(outreachOffersCmd)
	rootCmd.AddCommand(outreachCmd)
}
