// Package export writes lead lists to CSV and XLSX files for operator
// review.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/outreach-cli/internal/model"
)

var leadHeader = []string{
	"id", "business_name", "stage", "preferred_channel", "email", "phone",
	"website", "address", "audience", "country_code", "preview_url",
	"payment_url", "sale_amount", "accepted_plan", "created_at",
}

func leadRow(l model.Lead) []string {
	return []string{
		fmt.Sprintf("%d", l.ID),
		l.BusinessName,
		string(l.Stage),
		string(l.PreferredChannel),
		l.Email,
		l.Phone,
		l.Website,
		l.Address,
		l.Audience,
		l.CountryCode,
		l.PreviewURL,
		l.PaymentURL,
		fmt.Sprintf("%.2f", l.SaleAmount),
		string(l.AcceptedPlan),
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// WriteCSV writes leads to a CSV file at path.
func WriteCSV(path string, leads []model.Lead) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	if err := w.Write(leadHeader); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for _, l := range leads {
		if err := w.Write(leadRow(l)); err != nil {
			return eris.Wrapf(err, "export: write lead %d", l.ID)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrap(err, "export: flush csv")
	}
	return eris.Wrap(f.Close(), "export: close csv")
}

// WriteXLSX writes leads to an XLSX workbook at path.
func WriteXLSX(path string, leads []model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("leads")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range leadHeader {
		header.AddCell().SetString(col)
	}
	for _, l := range leads {
		row := sheet.AddRow()
		for _, v := range leadRow(l) {
			row.AddCell().SetString(v)
		}
	}

	return eris.Wrapf(f.Save(path), "export: save %s", path)
}
