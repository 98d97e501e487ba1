package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/report"
)

func newSaleCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sale",
		Short: "Ring up, list and delete sales",
	}
	cmd.AddCommand(
		newSaleCreateCmd(opts),
		newSaleListCmd(opts),
		newSaleShowCmd(opts),
		newSaleDeleteCmd(opts),
	)
	return cmd
}

// parseItem reads "<product id>=<dozens>", e.g. "1=1.5".
func parseItem(raw string) (domain.SaleLine, error) {
	rawID, rawDozens, ok := strings.Cut(raw, "=")
	if !ok {
		return domain.SaleLine{}, fmt.Errorf("item %q: expected <product id>=<dozens>", raw)
	}
	id, err := parseID(strings.TrimSpace(rawID))
	if err != nil {
		return domain.SaleLine{}, fmt.Errorf("item %q: %w", raw, err)
	}
	dozens, err := decimal.NewFromString(strings.TrimSpace(rawDozens))
	if err != nil {
		return domain.SaleLine{}, fmt.Errorf("item %q: invalid dozens", raw)
	}
	return domain.SaleLine{ProductID: id, Dozens: dozens}, nil
}

func newSaleCreateCmd(opts *globalOptions) *cobra.Command {
	var (
		items    []string
		customer string
		credit   bool
		paid     int64
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Record a sale and take its items out of stock",
		Long: `Record a sale. The whole cart is committed or nothing is.

Examples:
  posctl sale create --item 1=2                          # two dozen of product 1
  posctl sale create --item 1=0.5 --item 3=1             # several lines
  posctl sale create --item 2=1 --customer Hana --credit # on credit`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.SaleRequest{IsCredit: credit}
			for _, raw := range items {
				line, err := parseItem(raw)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, line)
			}
			if customer != "" {
				req.CustomerName = &customer
			}
			if cmd.Flags().Changed("paid") {
				req.PaidCents = &paid
			}
			return opts.run(cmd, func(s *session) error {
				sale, err := s.svc.CreateSale(s.ctx, req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), sale)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sale %d: %s, paid %s\n", sale.ID, report.FormatCents(sale.TotalCents), report.FormatCents(sale.PaidCents))
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", nil, "Sale line as <product id>=<dozens>, repeatable")
	cmd.Flags().StringVar(&customer, "customer", "", "Customer name")
	cmd.Flags().BoolVar(&credit, "credit", false, "Sell on credit")
	cmd.Flags().Int64Var(&paid, "paid", 0, "Amount paid now in cents")
	return cmd
}

func newSaleListCmd(opts *globalOptions) *cobra.Command {
	var (
		from, to string
		customer string
		credit   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sales with their items, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				filter := domain.SaleFilter{Customer: customer, CreditOnly: credit}
				loc := s.svc.Location()
				if from != "" {
					t, err := time.ParseInLocation("2006-01-02", from, loc)
					if err != nil {
						return fmt.Errorf("invalid --from: %w", err)
					}
					filter.From = &t
				}
				if to != "" {
					t, err := time.ParseInLocation("2006-01-02", to, loc)
					if err != nil {
						return fmt.Errorf("invalid --to: %w", err)
					}
					t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
					filter.To = &t
				}
				sales, err := s.svc.ListSales(s.ctx, filter)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), sales)
				}
				return printSales(cmd.OutOrStdout(), sales, loc)
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&customer, "customer", "", "Customer name search")
	cmd.Flags().BoolVar(&credit, "credit", false, "Only credit sales")
	return cmd
}

func printSales(w io.Writer, sales []domain.SaleView, loc *time.Location) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tWHEN\tCUSTOMER\tITEMS\tTOTAL\tOWED")
	for _, sale := range sales {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\t%s\n",
			sale.ID,
			sale.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			sale.CustomerLabel(),
			len(sale.Items),
			report.FormatCents(sale.TotalCents),
			report.FormatCents(sale.OutstandingCents()),
		)
	}
	return tw.Flush()
}

func newSaleShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one sale line by line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(s *session) error {
				sale, err := s.svc.GetSale(s.ctx, id)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), sale)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "sale %d  %s  %s\n", sale.ID, sale.CreatedAt.In(s.svc.Location()).Format("2006-01-02 15:04"), sale.CustomerLabel())
				tw := newTable(w)
				fmt.Fprintln(tw, "PRODUCT\tDOZENS\tPIECES\tLINE")
				for _, item := range sale.Items {
					name := fmt.Sprintf("#%d", item.ProductID)
					if item.Product != nil {
						name = item.Product.Name
					}
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", name, item.Dozens.String(), item.Pieces, report.FormatCents(item.LineTotalCents))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				fmt.Fprintf(w, "total %s, paid %s, credit %t\n", report.FormatCents(sale.TotalCents), report.FormatCents(sale.PaidCents), sale.IsCredit)
				return nil
			})
		},
	}
}

func newSaleDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a sale and put its items back in stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(s *session) error {
				if err := s.svc.DeleteSale(s.ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted sale %d, stock restored\n", id)
				return nil
			})
		},
	}
}
