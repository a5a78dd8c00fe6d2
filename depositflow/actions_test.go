package depositflow

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Olcmyk/Hodlock/positions"
)

// fakeWrites records which single-write operations reached the chain.
type fakeWrites struct {
	withdraws      int
	earlyWithdraws int
	claims         int
	mints          int
	referrerClaims int
	waited         []common.Hash
}

func (w *fakeWrites) actions(now uint64) *Actions {
	write := func(counter *int, tx common.Hash) WithdrawFunc {
		return func(ctx context.Context, pool common.Address, index uint64) (common.Hash, error) {
			*counter++
			return tx, nil
		}
	}
	actions, err := NewActions(Actions{
		Withdraw:        write(&w.withdraws, common.HexToHash("0x01")),
		WithdrawEarly:   write(&w.earlyWithdraws, common.HexToHash("0x02")),
		ClaimReward:     write(&w.claims, common.HexToHash("0x03")),
		MintCertificate: write(&w.mints, common.HexToHash("0x04")),
		ClaimReferrerRewards: func(ctx context.Context, pool common.Address) (common.Hash, error) {
			w.referrerClaims++
			return common.HexToHash("0x05"), nil
		},
		Wait: func(ctx context.Context, tx common.Hash) error {
			w.waited = append(w.waited, tx)
			return nil
		},
		Now: func() uint64 { return now },
	})
	if err != nil {
		panic(err)
	}
	return actions
}

func lockedPosition() *positions.Position {
	return &positions.Position{
		Pool:       testPool,
		Index:      2,
		Principal:  big.NewInt(1000),
		UnlocksAt:  2000,
		PenaltyBps: 1000,
	}
}

// --- Test Suite ---

func TestWithdrawPosition(t *testing.T) {
	t.Run("Refused while locked", func(t *testing.T) {
		writes := &fakeWrites{}
		_, err := writes.actions(1999).WithdrawPosition(context.Background(), lockedPosition())
		require.ErrorIs(t, err, ErrStillLocked)
		assert.Equal(t, 0, writes.withdraws, "a guarded refusal must not touch the chain")
	})

	t.Run("Allowed at maturity", func(t *testing.T) {
		writes := &fakeWrites{}
		tx, err := writes.actions(2000).WithdrawPosition(context.Background(), lockedPosition())
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash("0x01"), tx)
		assert.Equal(t, 1, writes.withdraws)
		assert.Equal(t, []common.Hash{tx}, writes.waited)
	})
}

func TestWithdrawPositionEarly(t *testing.T) {
	t.Run("Refused once unlocked", func(t *testing.T) {
		writes := &fakeWrites{}
		_, err := writes.actions(2000).WithdrawPositionEarly(context.Background(), lockedPosition())
		require.ErrorIs(t, err, ErrAlreadyUnlocked)
		assert.Equal(t, 0, writes.earlyWithdraws)
	})

	t.Run("Refused for permanently locked positions", func(t *testing.T) {
		p := lockedPosition()
		p.PenaltyBps = 10000
		writes := &fakeWrites{}
		_, err := writes.actions(1000).WithdrawPositionEarly(context.Background(), p)
		require.ErrorIs(t, err, ErrPermanentlyLocked)
		assert.Equal(t, 0, writes.earlyWithdraws)
	})

	t.Run("Allowed while locked with a custom penalty", func(t *testing.T) {
		writes := &fakeWrites{}
		tx, err := writes.actions(1000).WithdrawPositionEarly(context.Background(), lockedPosition())
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash("0x02"), tx)
		assert.Equal(t, 1, writes.earlyWithdraws)
	})
}

func TestClaimPositionReward(t *testing.T) {
	writes := &fakeWrites{}
	tx, err := writes.actions(1000).ClaimPositionReward(context.Background(), lockedPosition())
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x03"), tx)
	assert.Equal(t, 1, writes.claims)
}

func TestMintPositionCertificate(t *testing.T) {
	t.Run("Refused when a certificate already exists", func(t *testing.T) {
		p := lockedPosition()
		p.HasCertificate = true
		writes := &fakeWrites{}
		_, err := writes.actions(1000).MintPositionCertificate(context.Background(), p)
		require.Error(t, err)
		assert.Equal(t, 0, writes.mints)
	})

	t.Run("Allowed otherwise", func(t *testing.T) {
		writes := &fakeWrites{}
		tx, err := writes.actions(1000).MintPositionCertificate(context.Background(), lockedPosition())
		require.NoError(t, err)
		assert.Equal(t, common.HexToHash("0x04"), tx)
		assert.Equal(t, 1, writes.mints)
	})
}

func TestClaimReferralRewards(t *testing.T) {
	writes := &fakeWrites{}
	tx, err := writes.actions(1000).ClaimReferralRewards(context.Background(), testPool)
	require.NoError(t, err)
	assert.Equal(t, common.HexToHash("0x05"), tx)
	assert.Equal(t, 1, writes.referrerClaims)
	assert.Equal(t, []common.Hash{tx}, writes.waited)
}

func TestActionsSubmitFailure(t *testing.T) {
	writes := &fakeWrites{}
	actions := writes.actions(2000)
	actions.Withdraw = func(ctx context.Context, pool common.Address, index uint64) (common.Hash, error) {
		return common.Hash{}, errors.New("rpc error")
	}

	_, err := actions.WithdrawPosition(context.Background(), lockedPosition())
	require.Error(t, err)
	assert.Empty(t, writes.waited, "a failed submission is never awaited")
}
