package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Show the adaptive pricing state and recent level events",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		limit, _ := cmd.Flags().GetInt("events")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		state, err := st.PricingState(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("level %d: COMPLETO R$ %d, SIMPLES R$ %d\n",
			state.Level, state.PriceFull, state.PriceSimple)
		fmt.Printf("window: %d offer(s), %d sale(s)\n",
			state.OffersInWindow, state.SalesInWindow)
		if state.BaselineConversion != nil {
			fmt.Printf("baseline conversion: %.3f\n", *state.BaselineConversion)
		} else {
			fmt.Println("baseline conversion: not yet captured")
		}

		events, err := st.ListPricingEvents(ctx, limit)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "\nWHEN\tTYPE\tLEVEL\tREASON")
		for _, e := range events {
			fmt.Fprintf(w, "%s\t%s\t%d -> %d\t%s\n",
				e.Timestamp.Format(time.RFC3339), e.Type, e.FromLevel, e.ToLevel, e.Reason)
		}
		return w.Flush()
	},
}

func init() {
	pricingCmd.Flags().Int("events", 10, "number of recent pricing events to show")

	rootCmd.AddCommand(pricingCmd)
}
