package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Olcmyk/Hodlock/catalog"
)

var cmdInvite = &cobra.Command{
	Use:   "invite [entry url]",
	Short: "Capture a referral from an invite link, or show the captured one",
	Long: `Capture a referral from an invite link, or show the captured one.

With a URL argument, the link's referrer parameter is persisted locally and
used as the default referrer for future deposits. Without arguments, the
currently captured referrer is printed.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runInvite,
}

var cmdReferrer = &cobra.Command{
	Use:   "referrer [pool]",
	Short: "Show referrer standing in a pool",
	Args:  cobra.ExactArgs(1),
	Run:   runReferrer,
}

var flagReferrer struct {
	Claim bool
}

func init() {
	cmdReferrer.Flags().BoolVar(&flagReferrer.Claim, "claim", false, "Claim the accumulated referrer rewards")
	cmdMain.AddCommand(cmdInvite, cmdReferrer)
}

func runInvite(cmd *cobra.Command, args []string) {
	s := loadSettings()
	store := openReferralStore(s)
	defer store.Close()

	if len(args) == 1 {
		checkf(store.CaptureFromEntry(args[0]), "failed to capture referral")
	}

	referrer := store.Referrer()
	if referrer == (common.Address{}) {
		fmt.Println("No referrer captured.")
		return
	}
	fmt.Printf("Referrer: %s\n", referrer.Hex())
}

func runReferrer(cmd *cobra.Command, args []string) {
	s := loadSettings()
	ctx := cmd.Context()
	gw := newGateway(s)

	cat := resolveCatalog(ctx, s)
	desc, ok := parseAddressArg(args[0], cat)
	if !ok {
		fatalf("no pool found for %q", args[0])
	}

	user := gw.From()
	referrer, err := gw.UserReferrer(ctx, desc.PoolAddress, user)
	checkf(err, "failed to read referrer for %s", user.Hex())
	rewards, err := gw.ReferrerRewards(ctx, desc.PoolAddress, user)
	checkf(err, "failed to read referrer rewards for %s", user.Hex())

	if referrer == (common.Address{}) {
		fmt.Println("Referred by: nobody")
	} else {
		fmt.Printf("Referred by: %s\n", referrer.Hex())
	}
	fmt.Printf("Unclaimed referrer rewards: %s %s\n", catalog.FormatAmount(rewards, desc.Decimals), desc.Symbol)

	if !flagReferrer.Claim {
		return
	}
	if rewards.Sign() == 0 {
		fatalf("nothing to claim")
	}
	tx, err := newActions(gw).ClaimReferralRewards(ctx, desc.PoolAddress)
	checkf(err, "claim failed")
	fmt.Printf("Referrer rewards claimed: %s\n", tx.Hex())
}
