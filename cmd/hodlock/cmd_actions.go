package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Olcmyk/Hodlock/depositflow"
	"github.com/Olcmyk/Hodlock/gateway"
	"github.com/Olcmyk/Hodlock/positions"
)

var cmdWithdraw = &cobra.Command{
	Use:   "withdraw [pool] [index]",
	Short: "Withdraw a matured position",
	Args:  cobra.ExactArgs(2),
	Run:   runWithdraw,
}

var cmdWithdrawEarly = &cobra.Command{
	Use:   "withdraw-early [pool] [index]",
	Short: "Withdraw before maturity, forfeiting the penalty",
	Args:  cobra.ExactArgs(2),
	Run:   runWithdrawEarly,
}

var cmdClaim = &cobra.Command{
	Use:   "claim [pool] [index]",
	Short: "Claim a position's accrued reward",
	Args:  cobra.ExactArgs(2),
	Run:   runClaim,
}

var cmdMint = &cobra.Command{
	Use:   "mint [pool] [index]",
	Short: "Mint the certificate for an existing position",
	Args:  cobra.ExactArgs(2),
	Run:   runMint,
}

func init() {
	cmdMain.AddCommand(cmdWithdraw, cmdWithdrawEarly, cmdClaim, cmdMint)
}

func newActions(gw *gateway.Gateway) *depositflow.Actions {
	actions, err := depositflow.NewActions(depositflow.Actions{
		Withdraw:             gw.Withdraw,
		WithdrawEarly:        gw.WithdrawEarly,
		ClaimReward:          gw.ClaimReward,
		MintCertificate:      gw.MintCertificate,
		ClaimReferrerRewards: gw.ClaimReferrerRewards,
		Wait:                 gw.WaitForReceipt,
		Now:                  func() uint64 { return uint64(time.Now().Unix()) },
	})
	check(err)
	return actions
}

// findPosition locates one of the owner's positions by pool and index.
func findPosition(ctx context.Context, s *settings, gw *gateway.Gateway, poolArg, indexArg string) *positions.Position {
	index, err := strconv.ParseUint(indexArg, 10, 64)
	checkf(err, "invalid position index %q", indexArg)

	cat := resolveCatalog(ctx, s)
	desc, ok := parseAddressArg(poolArg, cat)
	if !ok {
		fatalf("no pool found for %q", poolArg)
	}

	list, _ := positions.NewAggregator().List(ctx, gw.From(), cat, dialClient(s))
	for i := range list {
		if list[i].Pool == desc.PoolAddress && list[i].Index == index {
			return &list[i]
		}
	}
	fatalf("no open position %d in pool %s", index, desc.Symbol)
	return nil
}

func runWithdraw(cmd *cobra.Command, args []string) {
	s := loadSettings()
	ctx := cmd.Context()
	gw := newGateway(s)
	p := findPosition(ctx, s, gw, args[0], args[1])
	tx, err := newActions(gw).WithdrawPosition(ctx, p)
	checkf(err, "withdraw failed")
	fmt.Printf("Withdrawn: %s\n", tx.Hex())
}

func runWithdrawEarly(cmd *cobra.Command, args []string) {
	s := loadSettings()
	ctx := cmd.Context()
	gw := newGateway(s)
	p := findPosition(ctx, s, gw, args[0], args[1])
	penalty := p.PenaltyIfWithdrawnNow()
	tx, err := newActions(gw).WithdrawPositionEarly(ctx, p)
	checkf(err, "early withdraw failed")
	fmt.Printf("Withdrawn early, penalty forfeited: %s\n", penalty.String())
	fmt.Printf("Transaction: %s\n", tx.Hex())
}

func runClaim(cmd *cobra.Command, args []string) {
	s := loadSettings()
	ctx := cmd.Context()
	gw := newGateway(s)
	p := findPosition(ctx, s, gw, args[0], args[1])
	tx, err := newActions(gw).ClaimPositionReward(ctx, p)
	checkf(err, "claim failed")
	fmt.Printf("Reward claimed: %s\n", tx.Hex())
}

func runMint(cmd *cobra.Command, args []string) {
	s := loadSettings()
	ctx := cmd.Context()
	gw := newGateway(s)
	p := findPosition(ctx, s, gw, args[0], args[1])
	tx, err := newActions(gw).MintPositionCertificate(ctx, p)
	checkf(err, "mint failed")
	fmt.Printf("Certificate minted: %s\n", tx.Hex())
}
