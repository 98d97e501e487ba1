package httpapi

import (
	"bytes"
	"html/template"
	"time"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/report"
)

var summaryHTMLTmpl = template.Must(template.New("summary").Funcs(template.FuncMap{
	"date":  func(t time.Time) string { return t.Format("2006-01-02") },
	"money": report.FormatCents,
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Sales {{.Period}} {{date .From}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Sales {{.Period}}: {{date .From}} to {{date .To}}</h2>
  {{if .Customer}}<p>Customer: {{.Customer}}</p>{{end}}
  <p>Sales: {{.Metrics.SaleCount}} | Total: {{money .Metrics.TotalSalesCents}} | Profit: {{money .Metrics.ProfitCents}} ({{.Metrics.MarginPercent.StringFixed 2}}%)</p>
  <p>Receivables: {{money .Metrics.ReceivablesCents}} | Average sale: {{money .Metrics.AverageSaleCents}}</p>

  <h3>Sales</h3>
  <table>
    <thead><tr><th>#</th><th>Customer</th><th>Items</th><th>Total</th><th>Paid</th></tr></thead>
    <tbody>{{range .Sales}}<tr><td>{{.ID}}</td><td>{{.CustomerLabel}}</td><td>{{len .Items}}</td><td style="text-align:right;">{{money .TotalCents}}</td><td style="text-align:right;">{{money .PaidCents}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func summaryToPrintableHTML(summary domain.ReportSummary) string {
	var buf bytes.Buffer
	if err := summaryHTMLTmpl.Execute(&buf, summary); err != nil {
		return "<!doctype html><html><body><p>Report rendering error.</p></body></html>"
	}
	return buf.String()
}
