package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/outreach-cli/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export leads to CSV or XLSX",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		format, _ := cmd.Flags().GetString("format")
		out, _ := cmd.Flags().GetString("out")
		limit, _ := cmd.Flags().GetInt("limit")

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := st.ListLeads(ctx, limit)
		if err != nil {
			return err
		}

		if out == "" {
			out = filepath.Join(cfg.Export.Dir, "leads."+format)
		}
		switch format {
		case "csv":
			err = export.WriteCSV(out, leads)
		case "xlsx":
			err = export.WriteXLSX(out, leads)
		default:
			return eris.Errorf("unsupported export format: %s", format)
		}
		if err != nil {
			return err
		}

		fmt.Printf("exported %d lead(s) to %s\n", len(leads), out)
		return nil
	},
}

func init() {
	f := exportCmd.Flags()
	f.String("format", "csv", "output format: csv or xlsx")
	f.String("out", "", "output path (defaults to the configured export dir)")
	f.Int("limit", 1000, "maximum leads to export")

	rootCmd.AddCommand(exportCmd)
}
