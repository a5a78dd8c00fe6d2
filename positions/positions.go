// Package positions aggregates a user's lock positions across every pool in
// a catalog using batched, parallelized view calls.
package positions

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Olcmyk/Hodlock/reward"
)

// Position is one deposit a user holds in a pool. Its composite identity is
// (Pool, owner, Index); the index is assigned by the pool at deposit time and
// never changes.
type Position struct {
	Pool   common.Address
	Token  common.Address
	Symbol string
	Index  uint64

	// Principal is the remaining principal; it drops to zero on withdrawal
	// and is otherwise constant. OriginalPrincipal is the deposited amount.
	Principal         *big.Int
	OriginalPrincipal *big.Int

	// Share is the position's time-weighted claim on the penalty pool,
	// fixed at deposit time. RewardDebt is the contract's accounting
	// checkpoint for rewards already settled.
	Share      *big.Int
	RewardDebt *big.Int

	DepositedAt uint64
	UnlocksAt   uint64
	PenaltyBps  uint64

	HasCertificate bool
	PendingReward  *big.Int
}

// Unlocked reports whether the position has matured at the given time.
func (p *Position) Unlocked(now uint64) bool {
	return reward.IsUnlocked(now, p.UnlocksAt)
}

// EarlyWithdrawable reports whether an early withdrawal may be submitted at
// all. A position locked at the full penalty rate forfeits everything; the
// client treats it as permanently locked and never attempts the call.
func (p *Position) EarlyWithdrawable() bool {
	return p.PenaltyBps < reward.PermanentLockBps
}

// PenaltyIfWithdrawnNow returns the principal forfeited by an early
// withdrawal at this moment, mirroring the contract's arithmetic.
func (p *Position) PenaltyIfWithdrawnNow() *big.Int {
	return reward.PenaltyAmount(p.Principal, p.PenaltyBps)
}
