package cli

import (
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vietddude/buywatcher/internal/control"
	"github.com/vietddude/buywatcher/internal/core/domain"
)

var buysLimit int

var buysCmd = &cobra.Command{
	Use:   "buys",
	Short: "List the most recent alerted buys from the dedup store",
	Run:   runBuys,
}

func init() {
	buysCmd.Flags().IntVar(&buysLimit, "limit", 20, "number of buys to show")
	rootCmd.AddCommand(buysCmd)
}

func runBuys(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	c, err := control.Build(ctx, cfg)
	if err != nil {
		fatal("Failed to initialize", err)
	}
	defer func() { _ = c.Close() }()

	records, err := c.Store.Recent(ctx, buysLimit)
	if err != nil {
		fatal("Failed to list buys", err)
	}
	printBuys(os.Stdout, records)
}

func printBuys(w io.Writer, records []domain.BuyRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Detected", "Block", "Symbol", "Amount", "Value", "Fiat", "Tier", "Buyer", "Tx"})
	for _, r := range records {
		table.Append([]string{
			r.DetectedAt.Format(time.RFC3339),
			strconv.FormatUint(r.BlockNumber, 10),
			r.Symbol,
			r.TokenAmount,
			r.ReferenceAmount,
			r.FiatValue,
			r.Tier,
			r.Buyer,
			r.TxHash,
		})
	}
	table.Render()
}
