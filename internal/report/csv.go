package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/SamiSolomon/mobile/internal/domain"
)

// FormatCents renders an amount for people, e.g. "45.00 ETB".
func FormatCents(cents int64) string {
	return decimal.New(cents, -2).StringFixed(2) + " " + domain.Currency
}

// WriteCSV renders a summary as section,key,value rows followed by one row per sale line.
func WriteCSV(w io.Writer, summary domain.ReportSummary) error {
	cw := csv.NewWriter(w)
	m := summary.Metrics
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "period", summary.Period},
		{"summary", "from", summary.From.Format("2006-01-02T15:04:05Z07:00")},
		{"summary", "to", summary.To.Format("2006-01-02T15:04:05Z07:00")},
		{"summary", "customer", summary.Customer},
		{"summary", "currency", domain.Currency},
		{"summary", "sale_count", strconv.Itoa(m.SaleCount)},
		{"summary", "total_sales_cents", strconv.FormatInt(m.TotalSalesCents, 10)},
		{"summary", "profit_cents", strconv.FormatInt(m.ProfitCents, 10)},
		{"summary", "margin_percent", m.MarginPercent.StringFixed(2)},
		{"summary", "receivables_cents", strconv.FormatInt(m.ReceivablesCents, 10)},
		{"summary", "average_sale_cents", strconv.FormatInt(m.AverageSaleCents, 10)},
		{"summary", "customer_count", strconv.Itoa(m.CustomerCount)},
	}
	if err := cw.WriteAll(rows); err != nil {
		return err
	}

	if err := cw.Write([]string{"sale_id", "created_at", "customer", "credit", "product", "dozens", "line_total_cents"}); err != nil {
		return err
	}
	for _, sale := range summary.Sales {
		for _, item := range sale.Items {
			name := ""
			if item.Product != nil {
				name = item.Product.Name
			}
			if err := cw.Write([]string{
				strconv.FormatInt(sale.ID, 10),
				sale.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
				sale.CustomerLabel(),
				strconv.FormatBool(sale.IsCredit),
				name,
				item.Dozens.String(),
				strconv.FormatInt(item.LineTotalCents, 10),
			}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
