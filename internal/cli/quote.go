package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/router"
)

type quoteOptions struct {
	input       string
	output      string
	amount      string
	raw         bool
	slippageBps uint32
	asJSON      bool
}

func newQuoteCmd(root *rootOptions) *cobra.Command {
	opts := &quoteOptions{}
	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a swap across every configured venue",
		Example: "  npictl quote --in SOL --out USDC --amount 1.5\n" +
			"  npictl quote --in SOL --out USDC --amount 1500000000 --raw --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			a := root.app
			pair, err := a.Tokens.Pair(opts.input, opts.output)
			if err != nil {
				return err
			}
			amountIn, err := parseAmount(opts.amount, opts.raw, pair.InputDecimals)
			if err != nil {
				return err
			}

			req := router.Request{Pair: pair, AmountIn: amountIn}
			if cmd.Flags().Changed("slippage-bps") {
				req.SlippageBps = &opts.slippageBps
			}
			res, err := a.Router.Quote(cmd.Context(), req)
			if err != nil {
				return err
			}

			if opts.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printQuote(cmd.OutOrStdout(), pair, res)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.input, "in", "", "Input token symbol or mint")
	cmd.Flags().StringVar(&opts.output, "out", "", "Output token symbol or mint")
	cmd.Flags().StringVar(&opts.amount, "amount", "", "Amount to swap in token units (smallest units with --raw)")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Treat --amount as smallest units")
	cmd.Flags().Uint32Var(&opts.slippageBps, "slippage-bps", 0, "Slippage tolerance in basis points")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the full decision as JSON")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func parseAmount(v string, raw bool, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", v)
	}
	if raw && !d.IsInteger() {
		return 0, fmt.Errorf("raw amount must be an integer: %q", v)
	}
	if raw {
		decimals = 0
	}
	out, ok := models.DecimalToRaw(d, decimals)
	if !ok || out == 0 {
		return 0, fmt.Errorf("amount out of range: %q", v)
	}
	return out, nil
}

func printQuote(out io.Writer, pair models.Pair, res *router.QuoteResult) {
	sel := res.Decision.Selected
	fmt.Fprintf(out, "pair:      %s\n", pair)
	fmt.Fprintf(out, "decision:  %s\n", res.DecisionID)
	fmt.Fprintf(out, "selected:  %s (grade %s, mev %s)\n", strings.Join(sel.Venues, " -> "), sel.Grade, sel.MevRisk)
	fmt.Fprintf(out, "output:    %s %s\n", models.RawToDecimal(sel.ExpectedOutput, pair.OutputDecimals), pair.OutputSymbol)
	fmt.Fprintf(out, "min out:   %s %s (slippage %d bps)\n", models.RawToDecimal(res.Plan.MinAmountOut, pair.OutputDecimals), pair.OutputSymbol, res.Plan.SlippageBps)
	if res.Reference != nil {
		fmt.Fprintf(out, "reference: %s (%s, confidence %d bps)\n", res.Reference.Price, res.Reference.ProviderID, res.Reference.ConfidenceBps)
	}

	npi := res.Decision.Opportunity
	if npi.Available {
		fmt.Fprintf(out, "npi:       +%d bps, user %s treasury %s burn %s\n",
			npi.ImprovementBps,
			models.RawToDecimal(npi.ShareTokens, pair.OutputDecimals),
			models.RawToDecimal(npi.TreasuryTokens, pair.OutputDecimals),
			models.RawToDecimal(npi.BurnTokens, pair.OutputDecimals))
	} else {
		fmt.Fprintf(out, "npi:       none (%s)\n", npi.Explanation)
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "Venue\tOutput\tImpact(bps)\tFee(bps)\tLatency(ms)\tStatus")
	for _, q := range res.Quotes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\tok\n",
			q.VenueID, models.RawToDecimal(q.OutputAmount, pair.OutputDecimals), q.PriceImpactBps, q.FeeBps, q.LatencyMs)
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "%s\t-\t-\t-\t%d\t%s\n", f.VenueID, f.LatencyMs, f.Reason)
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(w, "%s\t-\t-\t-\t-\tskipped: %s\n", s.VenueID, s.Reason)
	}
	w.Flush()
}
