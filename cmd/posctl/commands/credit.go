package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SamiSolomon/mobile/internal/report"
)

func newCreditCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credit",
		Short: "Credit sales that are still owed",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List credit sales, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				sales, err := s.svc.ListCreditSales(s.ctx)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), sales)
				}
				return printSales(cmd.OutOrStdout(), sales, s.svc.Location())
			})
		},
	}

	payCmd := &cobra.Command{
		Use:     "mark-paid <sale id>",
		Aliases: []string{"pay"},
		Short:   "Mark a credit sale as fully paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(s *session) error {
				sale, err := s.svc.MarkPaid(s.ctx, id)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), sale)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sale %d paid in full (%s)\n", sale.ID, report.FormatCents(sale.PaidCents))
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, payCmd)
	return cmd
}
