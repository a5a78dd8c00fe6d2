package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/Olcmyk/Hodlock/catalog"
	"github.com/Olcmyk/Hodlock/positions"
)

var cmdPositions = &cobra.Command{
	Use:   "positions [owner address]",
	Short: "List open positions across all pools",
	Long: `List open positions across all pools.

The owner defaults to the configured signing key's address. Positions whose
reads fail are omitted and reported on stderr rather than shown with
zeroed amounts.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runPositions,
}

func init() {
	cmdMain.AddCommand(cmdPositions)
}

func runPositions(cmd *cobra.Command, args []string) {
	s := loadSettings()

	var owner common.Address
	if len(args) == 1 {
		if !common.IsHexAddress(args[0]) {
			fatalf("invalid owner address %q", args[0])
		}
		owner = common.HexToAddress(args[0])
	} else {
		owner = crypto.PubkeyToAddress(loadKey(s).PublicKey)
	}

	ctx := cmd.Context()
	cat := resolveCatalog(ctx, s)
	list, errs := positions.NewAggregator().List(ctx, owner, cat, dialClient(s))
	for _, err := range errs {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	now := uint64(time.Now().Unix())
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "POOL\tINDEX\tPRINCIPAL\tPENDING\tUNLOCKS\tPENALTY\tNFT")
	for i := range list {
		p := &list[i]
		desc, _ := cat.ByPool(p.Pool)
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			p.Symbol,
			p.Index,
			catalog.FormatAmount(p.Principal, desc.Decimals),
			catalog.FormatAmount(p.PendingReward, desc.Decimals),
			formatUnlock(p, now),
			formatPenalty(p),
			formatBool(p.HasCertificate),
		)
	}
	check(w.Flush())
}

func formatUnlock(p *positions.Position, now uint64) string {
	if p.Unlocked(now) {
		return "unlocked"
	}
	return time.Unix(int64(p.UnlocksAt), 0).UTC().Format("2006-01-02 15:04")
}

func formatPenalty(p *positions.Position) string {
	if !p.EarlyWithdrawable() {
		return "locked"
	}
	return fmt.Sprintf("%d.%02d%%", p.PenaltyBps/100, p.PenaltyBps%100)
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
