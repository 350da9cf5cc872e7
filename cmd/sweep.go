package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Close leads whose sequences expired",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ids, err := initRunner(st).CloseStale(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("closed %d stale lead(s)\n", len(ids))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
