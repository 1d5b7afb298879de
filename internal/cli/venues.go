package cli

import (
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/router"
)

type venuesOptions struct {
	rounds int
	input  string
	output string
	amount string
}

// The tracker only knows what this process observed, so scorecards come
// from the quote rounds run before printing.
func newVenuesCmd(root *rootOptions) *cobra.Command {
	opts := &venuesOptions{}
	cmd := &cobra.Command{
		Use:   "venues",
		Short: "List configured venues, optionally quoting them first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.rounds < 0 || opts.rounds > 50 {
				return fmt.Errorf("--rounds must be between 0 and 50")
			}
			a := root.app

			if opts.rounds > 0 {
				pair, err := a.Tokens.Pair(opts.input, opts.output)
				if err != nil {
					return err
				}
				amountIn, err := parseAmount(opts.amount, false, pair.InputDecimals)
				if err != nil {
					return err
				}
				for i := 0; i < opts.rounds; i++ {
					_, err := a.Router.Quote(cmd.Context(), router.Request{Pair: pair, AmountIn: amountIn})
					// a failed round is still a reliability sample
					if err != nil && !errors.Is(err, models.ErrNoRouteAvailable) {
						fmt.Fprintf(cmd.ErrOrStderr(), "round %d: %v\n", i+1, err)
					}
				}
			}

			venues := a.Router.Venues()
			sort.Slice(venues, func(i, j int) bool { return venues[i].ID < venues[j].ID })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "Venue\tKind\tGrade\tSuccess%\tP95(ms)\tSamples\tEndpoint")
			for _, v := range venues {
				s := a.Tracker.Summary(v.ID, 0)
				fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%d\t%d\t%s\n",
					v.ID, v.Kind, s.OverallScore, s.SuccessRate*100, s.P95LatencyMs, s.SampleSize, v.Endpoint)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&opts.rounds, "rounds", 0, "Quote rounds to run before printing scorecards")
	cmd.Flags().StringVar(&opts.input, "in", "SOL", "Input token for quote rounds")
	cmd.Flags().StringVar(&opts.output, "out", "USDC", "Output token for quote rounds")
	cmd.Flags().StringVar(&opts.amount, "amount", "1", "Quote round amount in token units")
	return cmd
}

func newTokensCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens",
		Short: "List tokens the router can resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens := root.app.Tokens.All()
			sort.Slice(tokens, func(i, j int) bool { return tokens[i].Symbol < tokens[j].Symbol })

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "Symbol\tDecimals\tMint")
			for _, t := range tokens {
				fmt.Fprintf(w, "%s\t%d\t%s\n", t.Symbol, t.Decimals, t.Mint)
			}
			return w.Flush()
		},
	}
}
