package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var replyCmd = &cobra.Command{
	Use:   "reply",
	Short: "Record and process an inbound reply",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		leadID, _ := cmd.Flags().GetInt64("lead")
		email, _ := cmd.Flags().GetString("email")
		channelStr, _ := cmd.Flags().GetString("channel")
		text, _ := cmd.Flags().GetString("text")

		if leadID == 0 && email == "" {
			return eris.New("either --lead or --email is required")
		}
		channel := model.Channel(strings.ToUpper(channelStr))
		if channel != model.ChannelEmail && channel != model.ChannelWhatsApp {
			return eris.Errorf("unsupported reply channel: %s", channelStr)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if leadID == 0 {
			leadID, err = st.GetLeadIDByEmail(ctx, email)
			if err != nil {
				return err
			}
			if leadID == 0 {
				return eris.Errorf("no lead with email %s", email)
			}
		}

		res, err := initRunner(st).ProcessReply(ctx, leadID, channel, text)
		if err != nil {
			return err
		}

		fmt.Printf("lead %d: %s (%.2f) -> %s", leadID, res.Classification, res.Confidence, res.Stage)
		if res.Sale != nil {
			fmt.Printf(", sale R$ %.2f (%s)", res.Sale.Amount, res.Sale.Plan)
		}
		if res.QueueID != 0 {
			fmt.Printf(", queued #%d", res.QueueID)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	f := replyCmd.Flags()
	f.Int64("lead", 0, "lead id the reply belongs to")
	f.String("email", "", "sender email, looked up when --lead is not given")
	f.String("channel", "EMAIL", "channel the reply arrived on (EMAIL or WHATSAPP)")
	f.String("text", "", "reply text")
	_ = replyCmd.MarkFlagRequired("text")

	rootCmd.AddCommand(replyCmd)
}
