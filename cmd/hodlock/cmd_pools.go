package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Olcmyk/Hodlock/catalog"
)

var cmdPools = &cobra.Command{
	Use:   "pools",
	Short: "List the pools the factory knows about",
	Args:  cobra.NoArgs,
	Run:   runPools,
}

var cmdCreatePool = &cobra.Command{
	Use:   "create-pool [token address]",
	Short: "Deploy a pool for a token that does not have one yet",
	Args:  cobra.ExactArgs(1),
	Run:   runCreatePool,
}

func init() {
	cmdMain.AddCommand(cmdPools, cmdCreatePool)
}

func resolveCatalog(ctx context.Context, s *settings) *catalog.Catalog {
	resolver, err := catalog.NewResolver(s.Factory, allowlistFunc(s))
	check(err)

	cat, skipped, err := resolver.Resolve(ctx, dialClient(s))
	checkf(err, "failed to resolve pool catalog from factory %s", s.Factory.Hex())
	for _, skipErr := range skipped {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", skipErr)
	}
	return cat
}

func runPools(cmd *cobra.Command, args []string) {
	s := loadSettings()
	cat := resolveCatalog(cmd.Context(), s)

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tNAME\tDECIMALS\tTOKEN\tPOOL")
	for _, desc := range cat.Pools() {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			desc.Symbol, desc.Name, desc.Decimals, desc.TokenAddress.Hex(), desc.PoolAddress.Hex())
	}
	check(w.Flush())
}

func runCreatePool(cmd *cobra.Command, args []string) {
	s := loadSettings()
	if !common.IsHexAddress(args[0]) {
		fatalf("invalid token address %q", args[0])
	}
	token := common.HexToAddress(args[0])
	ctx := cmd.Context()
	gw := newGateway(s)

	canCreate, reason, err := gw.CanCreatePool(ctx, s.Factory, token)
	checkf(err, "failed to query factory %s", s.Factory.Hex())
	if !canCreate {
		fatalf("factory refuses a pool for %s: %s", token.Hex(), reason)
	}

	tx, err := gw.CreatePool(ctx, s.Factory, token)
	checkf(err, "failed to submit pool creation for %s", token.Hex())
	fmt.Printf("Pool creation submitted: %s\n", tx.Hex())
	checkf(gw.WaitForReceipt(ctx, tx), "pool creation %s", tx.Hex())

	pool, err := gw.PoolForToken(ctx, s.Factory, token)
	checkf(err, "failed to look up the new pool for %s", token.Hex())
	fmt.Printf("Pool created: %s\n", pool.Hex())
}
