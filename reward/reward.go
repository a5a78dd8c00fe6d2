// Package reward mirrors the Hodlock contract's deterministic formulas so
// callers can display accurate projections without waiting on a contract
// read. All functions are pure and operate on integer fixed-point amounts;
// the authoritative values remain whatever the contract computes on-chain.
package reward

import "math/big"

const (
	// SecondsPerDay is the base unit for lock durations.
	SecondsPerDay uint64 = 86400

	// MinLockSeconds is the minimum lock duration accepted client-side.
	// The contract may accept shorter locks; the client never submits them.
	MinLockSeconds = SecondsPerDay

	// BpsDenominator is the basis-point scale (10000 = 100%).
	BpsDenominator uint64 = 10000

	// MinCustomPenaltyBps and MaxCustomPenaltyBps bound a user-chosen
	// penalty rate. Outside this range only PermanentLockBps is legal.
	MinCustomPenaltyBps uint64 = 500
	MaxCustomPenaltyBps uint64 = 9900

	// PermanentLockBps forfeits the entire principal on early withdrawal.
	// The client treats such positions as permanently locked until maturity
	// and never submits an early-withdraw call for them.
	PermanentLockBps = BpsDenominator

	// weightOffsetSeconds is the constant in the share formula's
	// denominator: share = principal * lockSeconds^2 / (lockSeconds + 365d).
	weightOffsetSeconds = 365 * SecondsPerDay
)

// UnlockTimestamp returns the unix timestamp at which a position matures.
func UnlockTimestamp(depositedAt, lockSeconds uint64) uint64 {
	return depositedAt + lockSeconds
}

// Weight reproduces the contract's calculateShare:
//
//	share = principal * lockSeconds^2 / (lockSeconds + 365 days)
//
// strictly increasing and concave in duration. It is a preview; the
// authoritative weight is assigned by the contract at deposit time.
func Weight(principal *big.Int, lockSeconds uint64) *big.Int {
	secs := new(big.Int).SetUint64(lockSeconds)
	numerator := new(big.Int).Mul(secs, secs)
	numerator.Mul(numerator, principal)
	denominator := new(big.Int).SetUint64(lockSeconds + weightOffsetSeconds)
	return numerator.Div(numerator, denominator)
}

// PenaltyAmount returns the principal forfeited if a position with the given
// remaining principal is withdrawn before its unlock timestamp.
func PenaltyAmount(principalRemaining *big.Int, penaltyBps uint64) *big.Int {
	amount := new(big.Int).Mul(principalRemaining, new(big.Int).SetUint64(penaltyBps))
	return amount.Div(amount, new(big.Int).SetUint64(BpsDenominator))
}

// IsUnlocked reports whether a position has matured. The boundary is
// inclusive: a position unlocks exactly at its unlock timestamp.
func IsUnlocked(now, unlockAt uint64) bool {
	return now >= unlockAt
}

// ValidLockDuration reports whether a lock duration may be submitted.
func ValidLockDuration(lockSeconds uint64) bool {
	return lockSeconds >= MinLockSeconds
}

// ValidPenaltyBps reports whether a penalty rate may be submitted: either a
// custom rate within [MinCustomPenaltyBps, MaxCustomPenaltyBps], or exactly
// PermanentLockBps for the "never withdraw early" commitment.
func ValidPenaltyBps(penaltyBps uint64) bool {
	if penaltyBps == PermanentLockBps {
		return true
	}
	return penaltyBps >= MinCustomPenaltyBps && penaltyBps <= MaxCustomPenaltyBps
}
