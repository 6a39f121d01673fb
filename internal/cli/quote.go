package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vietddude/buywatcher/internal/control"
	"github.com/vietddude/buywatcher/internal/core/domain"
	"github.com/vietddude/buywatcher/internal/indexing/quote"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <token-address>",
	Short: "Run every quote strategy for a token and show each result",
	Args:  cobra.ExactArgs(1),
	Run:   runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)
}

func runQuote(cmd *cobra.Command, args []string) {
	if !common.IsHexAddress(args[0]) {
		fatal("Invalid token address", fmt.Errorf("%q is not a hex address", args[0]))
	}
	addr := common.HexToAddress(args[0])

	cfg := setup()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	c, err := control.Build(ctx, cfg)
	if err != nil {
		fatal("Failed to initialize", err)
	}
	defer func() { _ = c.Close() }()

	snap, err := c.Registry.Snapshot(ctx)
	if err != nil {
		fatal("Failed to read registry", err)
	}
	token, ok := findToken(snap.Tokens, addr)
	if !ok {
		fatal("Token not in registry", fmt.Errorf("%s", addr.Hex()))
	}

	fmt.Printf("%s (%s) pool %s\n", token.Symbol, token.Address.Hex(), token.Pool.Hex())
	printTrace(os.Stdout, c.Resolver.Trace(ctx, token))
}

func findToken(tokens []domain.MonitoredToken, addr common.Address) (domain.MonitoredToken, bool) {
	for _, t := range tokens {
		if t.Address == addr {
			return t, true
		}
	}
	return domain.MonitoredToken{}, false
}

// printTrace marks the strategy the resolver would pick.
func printTrace(w io.Writer, results []quote.Result) {
	ok := color.New(color.FgGreen).SprintFunc()
	fail := color.New(color.FgRed).SprintFunc()

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "Strategy", "Rate", "Error"})
	picked := false
	for _, r := range results {
		mark := ""
		if r.OK() {
			if !picked {
				mark = ok("✔")
				picked = true
			}
			table.Append([]string{mark, r.Strategy, ok(r.Rate.String()), ""})
			continue
		}
		table.Append([]string{mark, r.Strategy, "", fail(r.Err.Error())})
	}
	table.Render()

	if !picked {
		fmt.Fprintln(w, fail("unpriceable: no strategy produced a rate"))
	}
}
