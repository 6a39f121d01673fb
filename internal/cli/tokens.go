package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vietddude/buywatcher/internal/control"
	"github.com/vietddude/buywatcher/internal/infra/storage/postgres"
	"github.com/vietddude/buywatcher/internal/registry"
)

var importFile string

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List monitored tokens, alert tiers and the fallback rate",
	Run:   runTokens,
}

var tokensImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a registry file into PostgreSQL",
	Run:   runTokensImport,
}

var tokensActivateCmd = &cobra.Command{
	Use:   "activate <token-address>",
	Short: "Resume monitoring a token stored in PostgreSQL",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { setTokenActive(args[0], true) },
}

var tokensDeactivateCmd = &cobra.Command{
	Use:   "deactivate <token-address>",
	Short: "Stop monitoring a token stored in PostgreSQL",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { setTokenActive(args[0], false) },
}

func init() {
	tokensImportCmd.Flags().StringVar(&importFile, "file", "tokens.yaml", "registry file to import")
	tokensCmd.AddCommand(tokensImportCmd, tokensActivateCmd, tokensDeactivateCmd)
	rootCmd.AddCommand(tokensCmd)
}

func runTokens(cmd *cobra.Command, args []string) {
	cfg := setup()
	ctx := context.Background()

	reg, db, err := control.OpenRegistry(ctx, cfg)
	if err != nil {
		fatal("Failed to open registry", err)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	snap, err := reg.Snapshot(ctx)
	if err != nil {
		fatal("Failed to read registry", err)
	}
	printSnapshot(os.Stdout, snap)
}

func printSnapshot(w io.Writer, snap *registry.Snapshot) {
	tokens := tablewriter.NewWriter(w)
	tokens.SetHeader([]string{"Symbol", "Address", "Decimals", "Pool", "Active"})
	for _, t := range snap.Tokens {
		tokens.Append([]string{
			t.Symbol,
			t.Address.Hex(),
			strconv.Itoa(int(t.Decimals)),
			t.Pool.Hex(),
			strconv.FormatBool(t.Active),
		})
	}
	tokens.Render()

	tiers := tablewriter.NewWriter(w)
	tiers.SetHeader([]string{"Tier", "Min", "Max", "Media"})
	for _, t := range snap.Tiers {
		upper := "∞"
		if t.Max != nil {
			upper = t.Max.String()
		}
		tiers.Append([]string{t.Name, t.Min.String(), upper, t.Media})
	}
	tiers.Render()

	fmt.Fprintf(w, "fallback rate: %s\n", snap.FallbackRate.String())
}

func runTokensImport(cmd *cobra.Command, args []string) {
	cfg := setup()
	if cfg.Database.URL == "" {
		fatal("Import needs a database", errors.New("database.url is empty"))
	}

	data, err := os.ReadFile(importFile)
	if err != nil {
		fatal("Failed to read registry file", err)
	}
	snap, err := registry.ParseFile(data)
	if err != nil {
		fatal("Invalid registry file", err)
	}

	ctx := context.Background()
	db, err := control.OpenDB(ctx, cfg.Database)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer func() { _ = db.Close() }()

	if err := registry.Import(ctx, postgres.NewTokenRepo(db), snap); err != nil {
		fatal("Import failed", err)
	}
	fmt.Printf("imported %d tokens and %d tiers from %s\n", len(snap.Tokens), len(snap.Tiers), importFile)
}

func setTokenActive(address string, active bool) {
	if !common.IsHexAddress(address) {
		fatal("Invalid token address", fmt.Errorf("%q is not a hex address", address))
	}
	cfg := setup()
	if cfg.Database.URL == "" {
		fatal("Token state lives in the database", errors.New("database.url is empty"))
	}

	ctx := context.Background()
	db, err := control.OpenDB(ctx, cfg.Database)
	if err != nil {
		fatal("Failed to connect to database", err)
	}
	defer func() { _ = db.Close() }()

	if err := postgres.NewTokenRepo(db).SetActive(ctx, address, active); err != nil {
		fatal("Failed to update token", err)
	}
	fmt.Printf("%s active=%v\n", common.HexToAddress(address).Hex(), active)
}
