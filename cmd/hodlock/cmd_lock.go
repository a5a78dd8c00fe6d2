package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/Olcmyk/Hodlock/catalog"
	"github.com/Olcmyk/Hodlock/depositflow"
	"github.com/Olcmyk/Hodlock/reward"
)

var cmdLock = &cobra.Command{
	Use:   "lock [token symbol or address]",
	Short: "Lock tokens into a pool",
	Long: `Lock tokens into a pool.

The flow approves the pool when the current allowance is insufficient,
submits the deposit, and optionally mints the position certificate. Each
step waits for its receipt; a failed run can be retried and resumes after
the last confirmed step.`,
	Args: cobra.ExactArgs(1),
	Run:  runLock,
}

var flagLock struct {
	Amount          string
	Days            uint64
	PenaltyBps      uint64
	NoEarlyWithdraw bool
	Mint            bool
	Referrer        string
}

func init() {
	cmdLock.Flags().StringVar(&flagLock.Amount, "amount", "", "Amount to lock, in token units (e.g. 12.5)")
	cmdLock.Flags().Uint64Var(&flagLock.Days, "days", 0, "Lock duration in days (minimum 1)")
	cmdLock.Flags().Uint64Var(&flagLock.PenaltyBps, "penalty-bps", 0, "Early-withdrawal penalty in basis points (500 to 9900)")
	cmdLock.Flags().BoolVar(&flagLock.NoEarlyWithdraw, "no-early-withdraw", false, "Forbid early withdrawal entirely")
	cmdLock.Flags().BoolVar(&flagLock.Mint, "mint", false, "Mint the position certificate after the deposit confirms")
	cmdLock.Flags().StringVar(&flagLock.Referrer, "referrer", "", "Referrer address (defaults to the captured referral, if any)")
	cmdMain.AddCommand(cmdLock)
}

func runLock(cmd *cobra.Command, args []string) {
	s := loadSettings()
	ctx := cmd.Context()

	cat := resolveCatalog(ctx, s)
	desc, ok := parseAddressArg(args[0], cat)
	if !ok {
		fatalf("no pool found for %q", args[0])
	}

	amount, err := catalog.ParseAmount(flagLock.Amount, desc.Decimals)
	checkf(err, "invalid --amount %q", flagLock.Amount)

	penaltyBps := flagLock.PenaltyBps
	if flagLock.NoEarlyWithdraw {
		if cmd.Flags().Changed("penalty-bps") {
			fatalf("--penalty-bps cannot be combined with --no-early-withdraw")
		}
		penaltyBps = reward.PermanentLockBps
	}

	referrer := resolveReferrer(s)

	gw := newGateway(s)
	owner := gw.From()
	flow, err := depositflow.NewFlow(depositflow.Config{
		Owner:            owner,
		ReadAllowance:    gw.Allowance,
		ReadDepositCount: gw.DepositCount,
		Approve:          gw.Approve,
		Deposit:          gw.Deposit,
		MintCertificate:  gw.MintCertificate,
		Wait:             gw.WaitForReceipt,
	})
	check(err)

	result, err := flow.Run(ctx, depositflow.Request{
		Pool:            desc.PoolAddress,
		Token:           desc.TokenAddress,
		Amount:          amount,
		LockSeconds:     flagLock.Days * reward.SecondsPerDay,
		PenaltyBps:      penaltyBps,
		NoEarlyWithdraw: flagLock.NoEarlyWithdraw,
		MintCertificate: flagLock.Mint,
		Referrer:        referrer,
	})
	checkf(err, "lock failed")

	fmt.Printf("Locked %s %s for %d days (position %d)\n", flagLock.Amount, desc.Symbol, flagLock.Days, result.PositionIndex)
	fmt.Printf("Deposit: %s\n", result.DepositTx.Hex())
	if flagLock.Mint {
		fmt.Printf("Certificate: %s\n", result.MintTx.Hex())
	}
}

// resolveReferrer prefers an explicit --referrer over the locally captured
// one; self-referrals are left for the contract to reject.
func resolveReferrer(s *settings) common.Address {
	if flagLock.Referrer != "" {
		if !common.IsHexAddress(flagLock.Referrer) {
			fatalf("invalid --referrer address %q", flagLock.Referrer)
		}
		return common.HexToAddress(flagLock.Referrer)
	}
	store := openReferralStore(s)
	defer store.Close()
	return store.Referrer()
}
