package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/SamiSolomon/mobile/internal/app"
	"github.com/SamiSolomon/mobile/internal/config"
	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/logging"
	"github.com/SamiSolomon/mobile/internal/service"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	dbPath     string
	driver     string
	verbose    bool
	jsonOutput bool
}

// session is an opened repository plus a context acting as the shop admin.
type session struct {
	svc   *service.Service
	ctx   context.Context
	close func() error
}

func (o *globalOptions) open(cmd *cobra.Command) (*session, error) {
	cfg := config.Load()
	if o.driver != "" {
		cfg.StoreDriver = o.driver
	}
	if o.dbPath != "" {
		cfg.SQLitePath = o.dbPath
	}

	level := "warn"
	if o.verbose {
		level = "debug"
	}
	logger := logging.New(level, "text")
	logger.SetOutput(cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	svc := service.New(repo,
		service.WithLogger(logger),
		service.WithLocation(cfg.Location()),
	)
	ctx = service.WithActor(ctx, domain.Actor{Username: "posctl", Role: domain.RoleAdmin})
	return &session{svc: svc, ctx: ctx, close: repo.Close}, nil
}

// run opens a session, hands it to fn and closes it again.
func (o *globalOptions) run(cmd *cobra.Command, fn func(s *session) error) error {
	s, err := o.open(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = s.close() }()
	return fn(s)
}

func (o *globalOptions) printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// NewRootCmd builds a fresh command tree; tests run it with their own args.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:   "posctl",
		Short: "posctl - shop counter tools for the POS data store",
		Long: `posctl works directly against the POS database, without the HTTP server.

It covers the day-to-day counter jobs:
  - Products: list, add, restock and remove stock lines
  - Sales: ring up a cart, list and delete sales with stock reverted
  - Credit: see who still owes and mark their sales paid
  - Reports: day, week, month and year summaries plus stock alerts
  - Loans: track money lent out and borrowed`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.dbPath, "db", "", "SQLite database file (defaults to SQLITE_PATH)")
	rootCmd.PersistentFlags().StringVar(&opts.driver, "driver", "", "Store driver: sqlite, postgres or memory (defaults to STORE_DRIVER)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "Output in JSON format")

	rootCmd.AddCommand(
		newProductCmd(opts),
		newSaleCmd(opts),
		newCreditCmd(opts),
		newReportCmd(opts),
		newLoanCmd(opts),
	)
	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
