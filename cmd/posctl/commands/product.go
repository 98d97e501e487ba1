package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/report"
)

func newProductCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage products and stock",
	}
	cmd.AddCommand(
		newProductListCmd(opts),
		newProductAddCmd(opts),
		newProductUpdateCmd(opts),
		newProductRestockCmd(opts),
		newProductDeleteCmd(opts),
	)
	return cmd
}

func newProductListCmd(opts *globalOptions) *cobra.Command {
	var query, stock string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products, newest first",
		Long: `List products with their price, stock in pieces and stock status.

Examples:
  posctl product list                # every product
  posctl product list --stock low    # only products at or under their threshold
  posctl product list -q egg         # name search, case-insensitive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				products, err := s.svc.ListProducts(s.ctx, query, stock)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), products)
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tNAME\tPRICE/DOZEN\tSTOCK\tSTATUS")
				for _, p := range products {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", p.ID, p.Name, report.FormatCents(p.PricePerDozenCents), p.StockPieces, p.StockStatus())
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "Name search")
	cmd.Flags().StringVar(&stock, "stock", "", "Stock filter: low or out")
	return cmd
}

func newProductAddCmd(opts *globalOptions) *cobra.Command {
	var (
		name      string
		price     int64
		cost      int64
		pieces    int64
		threshold int64
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.ProductCreateRequest{
				Name:               name,
				PricePerDozenCents: price,
				StockPieces:        pieces,
			}
			if cmd.Flags().Changed("cost") {
				req.CostPerDozenCents = &cost
			}
			if cmd.Flags().Changed("threshold") {
				req.LowStockThreshold = &threshold
			}
			return opts.run(cmd, func(s *session) error {
				product, err := s.svc.CreateProduct(s.ctx, req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), product)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added product %d (%s)\n", product.ID, product.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Product name")
	cmd.Flags().Int64Var(&price, "price", 0, "Price per dozen in cents")
	cmd.Flags().Int64Var(&cost, "cost", 0, "Cost per dozen in cents")
	cmd.Flags().Int64Var(&pieces, "stock", 0, "Opening stock in pieces")
	cmd.Flags().Int64Var(&threshold, "threshold", 0, "Low stock threshold in pieces")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newProductUpdateCmd(opts *globalOptions) *cobra.Command {
	var (
		name      string
		price     int64
		cost      int64
		clearCost bool
		threshold int64
		packSize  int64
	)
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change name, price, cost or thresholds; stock is left alone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			req := domain.ProductUpdateRequest{ClearCost: clearCost}
			flags := cmd.Flags()
			if flags.Changed("name") {
				req.Name = &name
			}
			if flags.Changed("price") {
				req.PricePerDozenCents = &price
			}
			if flags.Changed("cost") {
				req.CostPerDozenCents = &cost
			}
			if flags.Changed("threshold") {
				req.LowStockThreshold = &threshold
			}
			if flags.Changed("pack-size") {
				req.PackSize = &packSize
			}
			return opts.run(cmd, func(s *session) error {
				product, err := s.svc.UpdateProduct(s.ctx, id, req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), product)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated product %d (%s)\n", product.ID, product.Name)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Product name")
	cmd.Flags().Int64Var(&price, "price", 0, "Price per dozen in cents")
	cmd.Flags().Int64Var(&cost, "cost", 0, "Cost per dozen in cents")
	cmd.Flags().BoolVar(&clearCost, "clear-cost", false, "Forget the cost")
	cmd.Flags().Int64Var(&threshold, "threshold", 0, "Low stock threshold in pieces")
	cmd.Flags().Int64Var(&packSize, "pack-size", 0, "Pieces per dozen-unit")
	return cmd
}

func newProductRestockCmd(opts *globalOptions) *cobra.Command {
	var (
		pieces   int64
		cost     int64
		supplier string
	)
	cmd := &cobra.Command{
		Use:   "restock <id>",
		Short: "Record a purchase and add it to stock",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(s *session) error {
				purchase, err := s.svc.RestockProduct(s.ctx, id, domain.RestockRequest{
					QuantityPieces:    pieces,
					CostPerDozenCents: cost,
					Supplier:          supplier,
				})
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), purchase)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restocked product %d with %d pieces\n", id, purchase.QuantityPieces)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&pieces, "pieces", 0, "Pieces received")
	cmd.Flags().Int64Var(&cost, "cost", 0, "Cost per dozen in cents")
	cmd.Flags().StringVar(&supplier, "supplier", "", "Supplier name")
	_ = cmd.MarkFlagRequired("pieces")
	return cmd
}

func newProductDeleteCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a product that no sale references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(s *session) error {
				if err := s.svc.DeleteProduct(s.ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted product %d\n", id)
				return nil
			})
		},
	}
}
