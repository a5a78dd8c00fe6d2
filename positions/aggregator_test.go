package positions

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hodlockabi "github.com/Olcmyk/Hodlock/abi"
	"github.com/Olcmyk/Hodlock/catalog"
)

var (
	getDepositCountSig = hodlockabi.HodlockABI.Methods["getDepositCount"].ID
	userDepositsSig    = hodlockabi.HodlockABI.Methods["userDeposits"].ID
	hasNFTSig          = hodlockabi.HodlockABI.Methods["hasNFT"].ID
	pendingRewardSig   = hodlockabi.HodlockABI.Methods["pendingReward"].ID
)

// record mirrors the pool's stored position tuple for test setup.
type record struct {
	amount         int64
	originalAmount int64
	share          int64
	rewardDebt     int64
	depositedAt    uint64
	unlocksAt      uint64
	penaltyBps     uint64
	withdrawn      bool

	hasNFT  bool
	pending int64
}

func (r *record) encode() []byte {
	data := make([]byte, 256)
	writeSlot := func(slot int, v *big.Int) {
		copy(data[slot*32:(slot+1)*32], common.BigToHash(v).Bytes())
	}
	writeSlot(0, big.NewInt(r.amount))
	writeSlot(1, big.NewInt(r.originalAmount))
	writeSlot(2, big.NewInt(r.share))
	writeSlot(3, big.NewInt(r.rewardDebt))
	writeSlot(4, new(big.Int).SetUint64(r.depositedAt))
	writeSlot(5, new(big.Int).SetUint64(r.unlocksAt))
	writeSlot(6, new(big.Int).SetUint64(r.penaltyBps))
	if r.withdrawn {
		data[255] = 1
	}
	return data
}

func encBool(b bool) []byte {
	data := make([]byte, 32)
	if b {
		data[31] = 1
	}
	return data
}

// mockPool serves one pool's view calls.
type mockPool struct {
	addr    common.Address
	records []record

	mu       sync.Mutex
	failures map[string]int // selector hex -> remaining failures
}

// failNext makes the next n calls to the given method fail.
func (p *mockPool) failNext(sig []byte, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures == nil {
		p.failures = make(map[string]int)
	}
	p.failures[string(sig)] += n
}

func (p *mockPool) shouldFail(sig []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures[string(sig)] > 0 {
		p.failures[string(sig)]--
		return true
	}
	return false
}

func (p *mockPool) handle(data []byte) ([]byte, error) {
	sig := data[:4]
	if p.shouldFail(sig) {
		return nil, errors.New("rpc error")
	}
	switch {
	case bytes.Equal(sig, getDepositCountSig):
		return common.BigToHash(big.NewInt(int64(len(p.records)))).Bytes(), nil
	case bytes.Equal(sig, userDepositsSig), bytes.Equal(sig, hasNFTSig), bytes.Equal(sig, pendingRewardSig):
		index := new(big.Int).SetBytes(data[36:68]).Uint64()
		if index >= uint64(len(p.records)) {
			return nil, errors.New("index out of range")
		}
		r := p.records[index]
		if bytes.Equal(sig, userDepositsSig) {
			return r.encode(), nil
		}
		if bytes.Equal(sig, hasNFTSig) {
			return encBool(r.hasNFT), nil
		}
		return common.BigToHash(big.NewInt(r.pending)).Bytes(), nil
	}
	return nil, fmt.Errorf("unexpected call data %x", sig)
}

func newTestClient(t *testing.T, pools ...*mockPool) *ethclients.TestETHClient {
	t.Helper()
	client := ethclients.NewTestETHClient()
	client.SetCallContractHandler(func(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
		for _, p := range pools {
			if *msg.To == p.addr {
				return p.handle(msg.Data)
			}
		}
		return nil, fmt.Errorf("unexpected call to address %s", msg.To.Hex())
	})
	return client
}

func testCatalog(pools ...*mockPool) *catalog.Catalog {
	descriptors := make([]catalog.PoolDescriptor, len(pools))
	for i, p := range pools {
		descriptors[i] = catalog.PoolDescriptor{
			PoolAddress:  p.addr,
			TokenAddress: common.BigToAddress(new(big.Int).Add(p.addr.Big(), big.NewInt(1000))),
			Symbol:       fmt.Sprintf("TK%d", i),
			Decimals:     18,
		}
	}
	return catalog.New(descriptors)
}

// --- Test Suite ---

func TestList(t *testing.T) {
	owner := common.HexToAddress("0xCAFE")

	newPools := func() (*mockPool, *mockPool) {
		pool1 := &mockPool{
			addr: common.HexToAddress("0x11"),
			records: []record{
				{amount: 100, originalAmount: 100, share: 50, depositedAt: 1000, unlocksAt: 2000, penaltyBps: 500, pending: 7},
				{amount: 0, originalAmount: 200, withdrawn: true},
				{amount: 300, originalAmount: 300, share: 150, depositedAt: 1100, unlocksAt: 9000, penaltyBps: 10000, hasNFT: true},
			},
		}
		pool2 := &mockPool{
			addr: common.HexToAddress("0x22"),
			records: []record{
				{amount: 400, originalAmount: 500, share: 250, depositedAt: 1200, unlocksAt: 3000, penaltyBps: 9900, pending: 11},
			},
		}
		return pool1, pool2
	}

	newAggregator := func(opts ...Option) *Aggregator {
		return NewAggregator(append([]Option{WithBatchDelay(0)}, opts...)...)
	}

	t.Run("Happy path excludes withdrawn and annotates the rest", func(t *testing.T) {
		pool1, pool2 := newPools()
		client := newTestClient(t, pool1, pool2)
		cat := testCatalog(pool1, pool2)

		list, errs := newAggregator().List(context.Background(), owner, cat, client)
		require.Empty(t, errs)
		require.Len(t, list, 3, "the withdrawn record must not appear")

		first := list[0]
		assert.Equal(t, pool1.addr, first.Pool)
		assert.Equal(t, uint64(0), first.Index)
		assert.Equal(t, "TK0", first.Symbol)
		assert.Equal(t, 0, big.NewInt(100).Cmp(first.Principal))
		assert.Equal(t, 0, big.NewInt(50).Cmp(first.Share))
		assert.Equal(t, uint64(2000), first.UnlocksAt)
		assert.Equal(t, uint64(500), first.PenaltyBps)
		assert.False(t, first.HasCertificate)
		assert.Equal(t, 0, big.NewInt(7).Cmp(first.PendingReward))

		permanent := list[1]
		assert.Equal(t, uint64(2), permanent.Index)
		assert.True(t, permanent.HasCertificate)
		assert.False(t, permanent.EarlyWithdrawable())

		other := list[2]
		assert.Equal(t, pool2.addr, other.Pool)
		assert.Equal(t, 0, big.NewInt(11).Cmp(other.PendingReward))
	})

	t.Run("Listing is idempotent between writes", func(t *testing.T) {
		pool1, pool2 := newPools()
		client := newTestClient(t, pool1, pool2)
		cat := testCatalog(pool1, pool2)
		aggregator := newAggregator()

		first, errs := aggregator.List(context.Background(), owner, cat, client)
		require.Empty(t, errs)
		second, errs := aggregator.List(context.Background(), owner, cat, client)
		require.Empty(t, errs)
		assert.Equal(t, first, second)
	})

	t.Run("Count failure drops only that pool", func(t *testing.T) {
		pool1, pool2 := newPools()
		pool1.failNext(getDepositCountSig, 1)
		client := newTestClient(t, pool1, pool2)
		cat := testCatalog(pool1, pool2)

		list, errs := newAggregator().List(context.Background(), owner, cat, client)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Error(), pool1.addr.Hex())
		require.Len(t, list, 1)
		assert.Equal(t, pool2.addr, list[0].Pool)
	})

	t.Run("Record read failure omits only that entry", func(t *testing.T) {
		pool1, pool2 := newPools()
		pool1.failNext(userDepositsSig, 1)
		client := newTestClient(t, pool1, pool2)
		cat := testCatalog(pool1, pool2)

		list, errs := newAggregator(WithBatchSize(1)).List(context.Background(), owner, cat, client)
		require.Len(t, errs, 1)
		// Never a zero-filled placeholder: the failed entry is simply absent.
		require.Len(t, list, 2)
	})

	t.Run("Annotation failure omits the entry rather than half-filling it", func(t *testing.T) {
		pool1, pool2 := newPools()
		pool1.failNext(hasNFTSig, 2)
		client := newTestClient(t, pool1, pool2)
		cat := testCatalog(pool1, pool2)

		list, errs := newAggregator(WithBatchSize(1)).List(context.Background(), owner, cat, client)
		require.Len(t, errs, 2)
		require.Len(t, list, 1)
		assert.Equal(t, pool2.addr, list[0].Pool)
	})

	t.Run("Retries recover a transiently failing read", func(t *testing.T) {
		pool1, pool2 := newPools()
		pool1.failNext(userDepositsSig, 1)
		client := newTestClient(t, pool1, pool2)
		cat := testCatalog(pool1, pool2)

		list, errs := newAggregator(WithBatchSize(1), WithRetries(1)).List(context.Background(), owner, cat, client)
		require.Empty(t, errs)
		assert.Len(t, list, 3)
	})

	t.Run("Empty catalog lists nothing", func(t *testing.T) {
		client := newTestClient(t)
		list, errs := newAggregator().List(context.Background(), owner, catalog.New(nil), client)
		assert.Nil(t, list)
		assert.Nil(t, errs)
	})
}

func TestPositionHelpers(t *testing.T) {
	locked := Position{
		Principal:  big.NewInt(1000),
		UnlocksAt:  2000,
		PenaltyBps: 5000,
	}
	assert.False(t, locked.Unlocked(1999))
	assert.True(t, locked.Unlocked(2000), "maturity itself counts as unlocked")
	assert.True(t, locked.EarlyWithdrawable())
	assert.Equal(t, 0, big.NewInt(500).Cmp(locked.PenaltyIfWithdrawnNow()))

	permanent := Position{
		Principal:  big.NewInt(1000),
		UnlocksAt:  2000,
		PenaltyBps: 10000,
	}
	assert.False(t, permanent.EarlyWithdrawable())
	assert.Equal(t, 0, big.NewInt(1000).Cmp(permanent.PenaltyIfWithdrawnNow()))
}
