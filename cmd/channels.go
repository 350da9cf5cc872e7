package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/health"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Inspect and control channel health",
}

var channelsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pause state, cooldowns, and today's budgets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		ctrl := health.NewController(st, healthThresholds())

		safeMode, err := ctrl.SafeModeActive(ctx)
		if err != nil {
			return err
		}
		day, err := ctrl.CampaignDay(ctx)
		if err != nil {
			return err
		}
		emailLimit, err := ctrl.EmailDailyLimit(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("campaign day %d, global safe mode: %v\n", day, safeMode)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHANNEL\tSTATE\tREASON\tCOOLDOWN UNTIL\tSENT TODAY\tDAILY LIMIT")
		for _, ch := range health.WatchedChannels {
			status, err := st.ChannelStatus(ctx, ch)
			if err != nil {
				return err
			}
			state, reason, cooldown := model.ChannelActive, "", ""
			if status != nil {
				state, reason = status.State, status.Reason
				if status.State == model.ChannelPaused && !status.CooldownUntil.IsZero() {
					cooldown = status.CooldownUntil.Format(time.RFC3339)
				}
			}

			sent, err := ctrl.SentToday(ctx, ch)
			if err != nil {
				return err
			}
			limit := "-"
			switch ch {
			case model.ChannelEmail:
				limit = fmt.Sprintf("%d", emailLimit)
			case model.ChannelWhatsApp:
				limit = fmt.Sprintf("%d", ctrl.WhatsAppDailyLimit())
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", ch, state, reason, cooldown, sent, limit)
		}
		return w.Flush()
	},
}

var channelsResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a paused channel before its cooldown elapses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		channelStr, _ := cmd.Flags().GetString("channel")
		channel := model.Channel(strings.ToUpper(channelStr))
		valid := false
		for _, ch := range health.WatchedChannels {
			if ch == channel {
				valid = true
			}
		}
		if !valid {
			return eris.Errorf("unknown channel: %s", channelStr)
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		ctrl := health.NewController(st, healthThresholds())

		if err := ctrl.Resume(ctx, channel); err != nil {
			return err
		}
		// A resume can drop the paused count below the safe-mode threshold.
		if _, err := ctrl.EvaluateSafeMode(ctx); err != nil {
			return err
		}
		fmt.Printf("channel %s resumed\n", channel)
		return nil
	},
}

var channelsFeedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Register provider email feedback (deliveries, bounces, complaints)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		sent, _ := cmd.Flags().GetInt("sent")
		bounces, _ := cmd.Flags().GetInt("bounces")
		complaints, _ := cmd.Flags().GetInt("complaints")
		if sent < 0 || bounces < 0 || complaints < 0 {
			return eris.New("feedback counts must be non-negative")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		ctrl := health.NewController(st, healthThresholds())

		reason, err := ctrl.RegisterEmailFeedback(ctx, store.MetricsDelta{
			Sent:       sent,
			Bounces:    bounces,
			Complaints: complaints,
		})
		if err != nil {
			return err
		}
		if _, err := ctrl.EvaluateSafeMode(ctx); err != nil {
			return err
		}

		if reason != "" {
			fmt.Printf("EMAIL paused: %s\n", reason)
		} else {
			fmt.Println("email feedback recorded, channel healthy")
		}
		return nil
	},
}

func init() {
	channelsResumeCmd.Flags().String("channel", "", "channel to resume (EMAIL, WHATSAPP, SCRAPE)")
	_ = channelsResumeCmd.MarkFlagRequired("channel")

	f := channelsFeedbackCmd.Flags()
	f.Int("sent", 0, "delivered email count reported by the provider")
	f.Int("bounces", 0, "bounce count reported by the provider")
	f.Int("complaints", 0, "spam complaint count reported by the provider")

	channelsCmd.AddCommand(channelsStatusCmd)
	channelsCmd.AddCommand(channelsResumeCmd)
	channelsCmd.AddCommand(channelsFeedbackCmd)
	rootCmd.AddCommand(channelsCmd)
}
