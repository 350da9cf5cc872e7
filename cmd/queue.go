package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and work the reply review queue",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queued inbound replies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		statusStr, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		var statuses []model.ReviewStatus
		if statusStr != "" {
			for _, s := range strings.Split(statusStr, ",") {
				statuses = append(statuses, model.ReviewStatus(strings.ToUpper(strings.TrimSpace(s))))
			}
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListReplyReview(ctx, statuses, limit)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "Queue is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tLEAD\tCHANNEL\tSTATUS\tINTENT\tCONF\tCREATED")
		for _, it := range items {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%.2f\t%s\n",
				it.ID, it.LeadID, it.Channel, it.Status, it.IntentFinal,
				it.Confidence, it.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var queueDecideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Draft replies for pending queue items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		decided, err := initRunner(st).DecideQueued(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Printf("decided %d queue item(s)\n", decided)
		return nil
	},
}

var queueSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a drafted reply (CODEX_DONE only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		id, _ := cmd.Flags().GetInt64("id")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := initRunner(st).SendQueued(ctx, id); err != nil {
			return err
		}
		fmt.Printf("queue item %d sent\n", id)
		return nil
	},
}

func init() {
	queueListCmd.Flags().String("status", "", "comma-separated status filter (PENDING,CODEX_DONE,REVIEW_REQUIRED,SENT)")
	queueListCmd.Flags().Int("limit", 50, "maximum items to list")
	queueDecideCmd.Flags().Int("limit", 20, "maximum pending items to decide")
	queueSendCmd.Flags().Int64("id", 0, "queue item id")
	_ = queueSendCmd.MarkFlagRequired("id")

	queueCmd.AddCommand(queueListCmd)
	queueCmd.AddCommand(queueDecideCmd)
	queueCmd.AddCommand(queueSendCmd)
	rootCmd.AddCommand(queueCmd)
}
