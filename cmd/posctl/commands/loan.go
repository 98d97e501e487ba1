package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/report"
)

func newLoanCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "loan",
		Short: "Money lent out and borrowed",
	}

	var kind string
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List loans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				loans, err := s.svc.ListLoans(s.ctx, kind)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), loans)
				}
				tw := newTable(cmd.OutOrStdout())
				fmt.Fprintln(tw, "ID\tKIND\tNAME\tAMOUNT\tSTATUS")
				for _, l := range loans {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", l.ID, l.Kind, l.Name, report.FormatCents(l.AmountCents), l.Status)
				}
				return tw.Flush()
			})
		},
	}
	listCmd.Flags().StringVar(&kind, "kind", "", "lent or borrowed")

	var req domain.LoanCreateRequest
	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Record a loan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, func(s *session) error {
				loan, err := s.svc.CreateLoan(s.ctx, req)
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return opts.printJSON(cmd.OutOrStdout(), loan)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loan %d recorded\n", loan.ID)
				return nil
			})
		},
	}
	addCmd.Flags().StringVar((*string)(&req.Kind), "kind", "", "lent or borrowed")
	addCmd.Flags().StringVar(&req.Name, "name", "", "Counterparty name")
	addCmd.Flags().StringVar(&req.Phone, "phone", "", "Counterparty phone")
	addCmd.Flags().Int64Var(&req.AmountCents, "amount", 0, "Amount in cents")

	payCmd := &cobra.Command{
		Use:     "mark-paid <id>",
		Aliases: []string{"pay"},
		Short:   "Mark a loan as paid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(s *session) error {
				loan, err := s.svc.MarkLoanPaid(s.ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loan %d marked %s\n", loan.ID, loan.Status)
				return nil
			})
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a loan record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return opts.run(cmd, func(s *session) error {
				if err := s.svc.DeleteLoan(s.ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted loan %d\n", id)
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, addCmd, payCmd, deleteCmd)
	return cmd
}
