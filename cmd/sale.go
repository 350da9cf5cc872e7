package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/model"
)

var saleCmd = &cobra.Command{
	Use:   "sale",
	Short: "Mark a lead as won",
	Long:  "Records a confirmed payment: settles the amount from the quoted offer, moves the lead to WON, and raises the price level.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		leadID, _ := cmd.Flags().GetInt64("lead")
		planStr, _ := cmd.Flags().GetString("plan")

		var amount *float64
		if cmd.Flags().Changed("amount") {
			v, _ := cmd.Flags().GetFloat64("amount")
			amount = &v
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sale, err := initRunner(st).MarkSale(ctx, leadID, model.NormalizePlan(planStr), amount)
		if err != nil {
			return err
		}

		fmt.Printf("lead %d won: R$ %.2f (%s), price level %d -> %d (R$ %d / R$ %d)\n",
			leadID, sale.Amount, sale.Plan, sale.FromLevel, sale.ToLevel,
			sale.PriceFull, sale.PriceSimple)
		return nil
	},
}

func init() {
	f := saleCmd.Flags()
	f.Int64("lead", 0, "lead id")
	f.String("plan", string(model.PlanComplete), "accepted plan (COMPLETO or SIMPLES)")
	f.Float64("amount", 0, "override the settled amount (defaults to the quoted price)")
	_ = saleCmd.MarkFlagRequired("lead")

	rootCmd.AddCommand(saleCmd)
}
