// Package cli implements npictl, an operator tool that quotes through the
// same router the API serves, without any storage backends.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aman-zulfiqar/solana-npi-router/internal/app"
	"github.com/aman-zulfiqar/solana-npi-router/internal/config"
)

type rootOptions struct {
	cfgFile  string
	logLevel string
	app      *app.App
}

// NewRootCmd builds the command tree. Output goes to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "npictl",
		Short:         "Quote swaps and inspect venues through the NPI router",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.app != nil {
				return nil
			}
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return err
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			logger := config.NewLogger(cfg.Logging)
			logger.SetOutput(os.Stderr)

			a, err := app.New(cmd.Context(), cfg, logger, app.Options{SkipStorage: true})
			if err != nil {
				return err
			}
			a.Start(cmd.Context())
			opts.app = a
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.app == nil {
				return nil
			}
			err := opts.app.Close()
			opts.app = nil
			return err
		},
	}
	root.SetOut(out)
	root.SetErr(out)

	root.PersistentFlags().StringVar(&opts.cfgFile, "config", os.Getenv("NPI_CONFIG"), "Path to configuration file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level defined in config")

	root.AddCommand(newQuoteCmd(opts))
	root.AddCommand(newVenuesCmd(opts))
	root.AddCommand(newTokensCmd(opts))
	return root
}

// Execute runs npictl with the process arguments.
func Execute() {
	if err := NewRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
