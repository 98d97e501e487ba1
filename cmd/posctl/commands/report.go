package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/report"
)

func newReportCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Sales summaries and stock alerts",
	}

	var (
		period   string
		customer string
		csvOut   bool
	)
	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Totals, profit and receivables for a period",
		Long: `Summarize the current day, week, month or year. Weeks start on Sunday.

Examples:
  posctl report summary                      # today
  posctl report summary --period month       # this calendar month
  posctl report summary --period year --csv  # spreadsheet export`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				summary, err := s.svc.Summary(s.ctx, period, customer)
				if err != nil {
					return err
				}
				switch {
				case csvOut:
					return report.WriteCSV(cmd.OutOrStdout(), summary)
				case opts.jsonOutput:
					return opts.printJSON(cmd.OutOrStdout(), summary)
				}
				printMetrics(cmd.OutOrStdout(), fmt.Sprintf("%s %s to %s", summary.Period, summary.From.Format("2006-01-02"), summary.To.Format("2006-01-02")), summary.Metrics)
				return nil
			})
		},
	}
	summaryCmd.Flags().StringVar(&period, "period", "day", "day, week, month or year")
	summaryCmd.Flags().StringVar(&customer, "customer", "", "Only this customer")
	summaryCmd.Flags().BoolVar(&csvOut, "csv", false, "Write CSV")

	alertsCmd := &cobra.Command{
		Use:   "alerts",
		Short: "Out of stock, low stock and unpaid credit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				alerts, err := s.svc.Alerts(s.ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), alerts)
				}
				if len(alerts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no alerts")
					return nil
				}
				for _, a := range alerts {
					fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", a.Kind, a.Message)
				}
				return nil
			})
		},
	}

	reorderCmd := &cobra.Command{
		Use:   "reorder",
		Short: "Suggested purchases for low and empty products",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				resp, err := s.svc.ReorderSuggestions(s.ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), resp)
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tNAME\tHAVE\tORDER\tEST. COST")
				for _, sug := range resp.Suggestions {
					fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%s\n", sug.ProductID, sug.Name, sug.CurrentPieces, sug.RecommendedPieces, report.FormatCents(sug.EstimatedPurchaseCents))
				}
				return tw.Flush()
			})
		},
	}

	dashboardCmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Today, all time, the latest sales and alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				dash, err := s.svc.Dashboard(s.ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), dash)
				}
				w := cmd.OutOrStdout()
				printMetrics(w, "today", dash.Today)
				fmt.Fprintln(w)
				printMetrics(w, "all time", dash.Overall)
				fmt.Fprintln(w)
				if err := printSales(w, dash.RecentSales, s.svc.Location()); err != nil {
					return err
				}
				for _, a := range dash.Alerts {
					fmt.Fprintf(w, "[%s] %s\n", a.Kind, a.Message)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(summaryCmd, alertsCmd, reorderCmd, dashboardCmd)
	return cmd
}

func printMetrics(w io.Writer, title string, m domain.Metrics) {
	tw := newTable(w)
	fmt.Fprintf(tw, "%s\n", title)
	fmt.Fprintf(tw, "sales\t%d\n", m.SaleCount)
	fmt.Fprintf(tw, "total\t%s\n", report.FormatCents(m.TotalSalesCents))
	fmt.Fprintf(tw, "profit\t%s (%s%%)\n", report.FormatCents(m.ProfitCents), m.MarginPercent.StringFixed(2))
	fmt.Fprintf(tw, "receivables\t%s\n", report.FormatCents(m.ReceivablesCents))
	fmt.Fprintf(tw, "average sale\t%s\n", report.FormatCents(m.AverageSaleCents))
	fmt.Fprintf(tw, "customers\t%d\n", m.CustomerCount)
	_ = tw.Flush()
}
