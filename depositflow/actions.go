package depositflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Olcmyk/Hodlock/positions"
)

var (
	// ErrStillLocked is returned when a standard withdrawal is attempted
	// before the position's unlock timestamp.
	ErrStillLocked = errors.New("position is still locked")
	// ErrAlreadyUnlocked is returned when an early withdrawal is attempted
	// on a matured position; a standard withdrawal applies instead.
	ErrAlreadyUnlocked = errors.New("position is already unlocked")
	// ErrPermanentlyLocked is returned when an early withdrawal is
	// attempted on a full-penalty position. The contract would revert the
	// call; the client refuses to submit it at all.
	ErrPermanentlyLocked = errors.New("position forfeits its entire principal on early withdrawal")
)

type WithdrawFunc func(ctx context.Context, pool common.Address, index uint64) (common.Hash, error)
type ClaimReferrerRewardsFunc func(ctx context.Context, pool common.Address) (common.Hash, error)
type NowFunc func() uint64

// Actions performs the single-write position operations, enforcing the
// client-side guards the contract's semantics demand before any call is
// submitted. Each operation waits for its receipt before returning.
type Actions struct {
	Withdraw             WithdrawFunc
	WithdrawEarly        WithdrawFunc
	ClaimReward          WithdrawFunc
	MintCertificate      WithdrawFunc
	ClaimReferrerRewards ClaimReferrerRewardsFunc
	Wait                 WaitFunc
	Now                  NowFunc
}

func (a *Actions) validate() error {
	if a.Withdraw == nil || a.WithdrawEarly == nil || a.ClaimReward == nil || a.MintCertificate == nil {
		return errors.New("all position write functions are required")
	}
	if a.ClaimReferrerRewards == nil {
		return errors.New("claim referrer rewards function is required")
	}
	if a.Wait == nil {
		return errors.New("wait function is required")
	}
	if a.Now == nil {
		return errors.New("now function is required")
	}
	return nil
}

// NewActions validates the dependency set.
func NewActions(a Actions) (*Actions, error) {
	if err := a.validate(); err != nil {
		return nil, fmt.Errorf("invalid actions configuration: %w", err)
	}
	return &a, nil
}

// WithdrawPosition withdraws a matured position in full.
func (a *Actions) WithdrawPosition(ctx context.Context, p *positions.Position) (common.Hash, error) {
	if !p.Unlocked(a.Now()) {
		return common.Hash{}, ErrStillLocked
	}
	return a.submit(ctx, a.Withdraw, p)
}

// WithdrawPositionEarly forfeits the penalty and withdraws before maturity.
// Positions locked at the full penalty rate are refused outright.
func (a *Actions) WithdrawPositionEarly(ctx context.Context, p *positions.Position) (common.Hash, error) {
	if p.Unlocked(a.Now()) {
		return common.Hash{}, ErrAlreadyUnlocked
	}
	if !p.EarlyWithdrawable() {
		return common.Hash{}, ErrPermanentlyLocked
	}
	return a.submit(ctx, a.WithdrawEarly, p)
}

// ClaimPositionReward claims the reward accrued since the last claim.
func (a *Actions) ClaimPositionReward(ctx context.Context, p *positions.Position) (common.Hash, error) {
	return a.submit(ctx, a.ClaimReward, p)
}

// MintPositionCertificate mints the proof-of-position token for an existing
// position that does not have one yet.
func (a *Actions) MintPositionCertificate(ctx context.Context, p *positions.Position) (common.Hash, error) {
	if p.HasCertificate {
		return common.Hash{}, fmt.Errorf("position %d in pool %s already has a certificate", p.Index, p.Pool.Hex())
	}
	return a.submit(ctx, a.MintCertificate, p)
}

// ClaimReferralRewards claims the caller's accumulated referrer rewards
// from the given pool.
func (a *Actions) ClaimReferralRewards(ctx context.Context, pool common.Address) (common.Hash, error) {
	tx, err := a.ClaimReferrerRewards(ctx, pool)
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.Wait(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx, nil
}

func (a *Actions) submit(ctx context.Context, write WithdrawFunc, p *positions.Position) (common.Hash, error) {
	tx, err := write(ctx, p.Pool, p.Index)
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.Wait(ctx, tx); err != nil {
		return common.Hash{}, err
	}
	return tx, nil
}
