// Package gateway is the live chain boundary: view calls, signed writes and
// receipt confirmation over an ETHClient. Success of a write is only known
// after explicit confirmation; callers must treat submission and
// confirmation as separate events.
package gateway

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	hodlockabi "github.com/Olcmyk/Hodlock/abi"
)

const (
	// defaultRPCTimeout bounds each individual RPC call.
	defaultRPCTimeout = 10 * time.Second

	// defaultPollInterval is how often a pending transaction's receipt is
	// polled while waiting for confirmation.
	defaultPollInterval = 2 * time.Second
)

var (
	// ErrReverted is returned when a confirmed transaction failed on-chain.
	ErrReverted = errors.New("transaction reverted")
	// ErrConfirmationTimeout is returned when the wait context expires
	// before a receipt appears. The transaction may still confirm later;
	// the caller decides whether to retry or surface a stuck state.
	ErrConfirmationTimeout = errors.New("transaction not confirmed before deadline")
)

// GetClientFunc supplies a healthy client for each operation, allowing the
// caller to rotate endpoints.
type GetClientFunc func() (ethclients.ETHClient, error)

// Config holds the gateway's dependencies and settings.
type Config struct {
	GetClient    GetClientFunc
	Key          *ecdsa.PrivateKey
	ChainID      *big.Int
	PollInterval time.Duration
}

func (c *Config) validate() error {
	if c.GetClient == nil {
		return errors.New("get client function is required")
	}
	if c.Key == nil {
		return errors.New("signing key is required")
	}
	if c.ChainID == nil || c.ChainID.Sign() <= 0 {
		return errors.New("chain id is required")
	}
	return nil
}

// Gateway signs and submits writes for one key and performs the view calls
// the flow and CLI need outside catalog resolution and aggregation.
type Gateway struct {
	getClient    GetClientFunc
	key          *ecdsa.PrivateKey
	from         common.Address
	chainID      *big.Int
	pollInterval time.Duration
}

// New constructs a Gateway from the configuration.
func New(cfg Config) (*Gateway, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway configuration: %w", err)
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Gateway{
		getClient:    cfg.GetClient,
		key:          cfg.Key,
		from:         crypto.PubkeyToAddress(cfg.Key.PublicKey),
		chainID:      cfg.ChainID,
		pollInterval: pollInterval,
	}, nil
}

// From returns the signing address.
func (g *Gateway) From() common.Address {
	return g.from
}

// --- Reads ---

// Allowance reads the ERC20 allowance granted by owner to spender.
func (g *Gateway) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	callData, err := hodlockabi.ERC20ABI.Pack("allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return g.readUint(ctx, token, callData, "allowance")
}

// Balance reads the ERC20 balance of an account.
func (g *Gateway) Balance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	callData, err := hodlockabi.ERC20ABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	return g.readUint(ctx, token, callData, "balanceOf")
}

// DepositCount reads the owner's position count in a pool.
func (g *Gateway) DepositCount(ctx context.Context, pool, owner common.Address) (uint64, error) {
	callData, err := hodlockabi.HodlockABI.Pack("getDepositCount", owner)
	if err != nil {
		return 0, err
	}
	value, err := g.readUint(ctx, pool, callData, "getDepositCount")
	if err != nil {
		return 0, err
	}
	return value.Uint64(), nil
}

// UserReferrer reads the permanent referrer the pool has recorded for a user.
func (g *Gateway) UserReferrer(ctx context.Context, pool, user common.Address) (common.Address, error) {
	callData, err := hodlockabi.HodlockABI.Pack("userReferrer", user)
	if err != nil {
		return common.Address{}, err
	}
	data, err := g.call(ctx, pool, callData)
	if err != nil {
		return common.Address{}, err
	}
	if len(data) != 32 {
		return common.Address{}, fmt.Errorf("invalid response length for userReferrer: got %d bytes", len(data))
	}
	return common.BytesToAddress(data), nil
}

// ReferrerRewards reads a user's accumulated, unclaimed referrer rewards.
func (g *Gateway) ReferrerRewards(ctx context.Context, pool, user common.Address) (*big.Int, error) {
	callData, err := hodlockabi.HodlockABI.Pack("referrerRewards", user)
	if err != nil {
		return nil, err
	}
	return g.readUint(ctx, pool, callData, "referrerRewards")
}

// PoolForToken resolves the factory's pool for a token; the zero address
// means no pool exists yet.
func (g *Gateway) PoolForToken(ctx context.Context, factory, token common.Address) (common.Address, error) {
	callData, err := hodlockabi.FactoryABI.Pack("getHodlock", token)
	if err != nil {
		return common.Address{}, err
	}
	data, err := g.call(ctx, factory, callData)
	if err != nil {
		return common.Address{}, err
	}
	if len(data) != 32 {
		return common.Address{}, fmt.Errorf("invalid response length for getHodlock: got %d bytes", len(data))
	}
	return common.BytesToAddress(data), nil
}

// CanCreatePool asks the factory whether a pool may be created for a token,
// returning the factory's reason when it may not.
func (g *Gateway) CanCreatePool(ctx context.Context, factory, token common.Address) (bool, string, error) {
	callData, err := hodlockabi.FactoryABI.Pack("canCreateHodlock", token)
	if err != nil {
		return false, "", err
	}
	data, err := g.call(ctx, factory, callData)
	if err != nil {
		return false, "", err
	}
	values, err := hodlockabi.FactoryABI.Unpack("canCreateHodlock", data)
	if err != nil {
		return false, "", fmt.Errorf("failed to decode canCreateHodlock: %w", err)
	}
	canCreate, ok := values[0].(bool)
	if !ok {
		return false, "", errors.New("unexpected type decoding canCreateHodlock")
	}
	reason, ok := values[1].(string)
	if !ok {
		return false, "", errors.New("unexpected type decoding canCreateHodlock reason")
	}
	return canCreate, reason, nil
}

// --- Writes ---

// Approve submits an ERC20 approval.
func (g *Gateway) Approve(ctx context.Context, token, spender common.Address, amount *big.Int) (common.Hash, error) {
	callData, err := hodlockabi.ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return common.Hash{}, err
	}
	return g.transact(ctx, token, callData)
}

// Deposit submits a deposit into a pool.
func (g *Gateway) Deposit(ctx context.Context, pool common.Address, amount *big.Int, lockSeconds, penaltyBps uint64, referrer common.Address) (common.Hash, error) {
	callData, err := hodlockabi.HodlockABI.Pack(
		"deposit",
		amount,
		new(big.Int).SetUint64(lockSeconds),
		new(big.Int).SetUint64(penaltyBps),
		referrer,
	)
	if err != nil {
		return common.Hash{}, err
	}
	return g.transact(ctx, pool, callData)
}

// Withdraw submits a standard withdrawal of a matured position.
func (g *Gateway) Withdraw(ctx context.Context, pool common.Address, index uint64) (common.Hash, error) {
	return g.positionWrite(ctx, pool, "withdraw", index)
}

// WithdrawEarly submits an early withdrawal, forfeiting the penalty.
func (g *Gateway) WithdrawEarly(ctx context.Context, pool common.Address, index uint64) (common.Hash, error) {
	return g.positionWrite(ctx, pool, "withdrawEarly", index)
}

// ClaimReward claims a position's accrued reward.
func (g *Gateway) ClaimReward(ctx context.Context, pool common.Address, index uint64) (common.Hash, error) {
	return g.positionWrite(ctx, pool, "claimReward", index)
}

// MintCertificate mints the proof-of-position token for a position.
func (g *Gateway) MintCertificate(ctx context.Context, pool common.Address, index uint64) (common.Hash, error) {
	return g.positionWrite(ctx, pool, "mintNFT", index)
}

// ClaimReferrerRewards claims the caller's referrer rewards from a pool.
func (g *Gateway) ClaimReferrerRewards(ctx context.Context, pool common.Address) (common.Hash, error) {
	callData, err := hodlockabi.HodlockABI.Pack("claimReferrerRewards")
	if err != nil {
		return common.Hash{}, err
	}
	return g.transact(ctx, pool, callData)
}

// CreatePool asks the factory to deploy a pool for a token.
func (g *Gateway) CreatePool(ctx context.Context, factory, token common.Address) (common.Hash, error) {
	callData, err := hodlockabi.FactoryABI.Pack("createHodlock", token)
	if err != nil {
		return common.Hash{}, err
	}
	return g.transact(ctx, factory, callData)
}

func (g *Gateway) positionWrite(ctx context.Context, pool common.Address, method string, index uint64) (common.Hash, error) {
	callData, err := hodlockabi.HodlockABI.Pack(method, new(big.Int).SetUint64(index))
	if err != nil {
		return common.Hash{}, err
	}
	return g.transact(ctx, pool, callData)
}

// WaitForReceipt polls for the transaction's receipt until it appears or
// the context expires. A revert is reported as ErrReverted; an expired
// context as ErrConfirmationTimeout so callers can surface a stuck state
// with a manual retry path instead of spinning silently.
func (g *Gateway) WaitForReceipt(ctx context.Context, tx common.Hash) error {
	client, err := g.getClient()
	if err != nil {
		return fmt.Errorf("failed to get eth client: %w", err)
	}
	return waitForReceipt(ctx, client.TransactionReceipt, tx, g.pollInterval)
}

// fetchReceiptFunc reads a transaction's receipt, returning
// ethereum.NotFound while the transaction is still pending.
type fetchReceiptFunc func(ctx context.Context, tx common.Hash) (*types.Receipt, error)

func waitForReceipt(ctx context.Context, fetch fetchReceiptFunc, tx common.Hash, pollInterval time.Duration) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		receipt, err := fetch(ctx, tx)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusFailed {
				return fmt.Errorf("%w: %s", ErrReverted, tx.Hex())
			}
			return nil
		case errors.Is(err, ethereum.NotFound):
			// Still pending; keep polling.
		default:
			return fmt.Errorf("failed to fetch receipt for %s: %w", tx.Hex(), err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrConfirmationTimeout, tx.Hex())
		}
	}
}

// transact builds, signs and submits a transaction priced for the
// chain's fee market.
func (g *Gateway) transact(parentCtx context.Context, to common.Address, callData []byte) (common.Hash, error) {
	client, err := g.getClient()
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get eth client: %w", err)
	}

	ctx, cancel := context.WithTimeout(parentCtx, defaultRPCTimeout)
	defer cancel()

	nonce, err := client.PendingNonceAt(ctx, g.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch nonce: %w", err)
	}
	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to fetch chain head: %w", err)
	}
	gasLimit, err := client.EstimateGas(ctx, ethereum.CallMsg{
		From: g.from,
		To:   &to,
		Data: callData,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
	}

	// A nil base fee means the chain predates dynamic-fee transactions, so
	// price the transaction with a legacy gas price instead.
	var tipCap, gasPrice *big.Int
	if head.BaseFee != nil {
		tipCap, err = client.SuggestGasTipCap(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to fetch gas tip cap: %w", err)
		}
	} else {
		gasPrice, err = client.SuggestGasPrice(ctx)
		if err != nil {
			return common.Hash{}, fmt.Errorf("failed to fetch gas price: %w", err)
		}
	}

	tx, err := types.SignNewTx(g.key, types.LatestSignerForChainID(g.chainID),
		newTxData(g.chainID, nonce, to, callData, gasLimit, head.BaseFee, tipCap, gasPrice))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	return tx.Hash(), nil
}

// newTxData prices a transaction for the chain's fee market. With a base
// fee present it builds a dynamic-fee transaction whose fee cap is
// 2*baseFee + tip, leaving headroom for base-fee growth while the
// transaction is pending; without one it builds a legacy transaction at
// the suggested gas price.
func newTxData(chainID *big.Int, nonce uint64, to common.Address, callData []byte, gasLimit uint64, baseFee, tipCap, gasPrice *big.Int) types.TxData {
	if baseFee == nil {
		return &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &to,
			Data:     callData,
		}
	}
	feeCap := new(big.Int).Add(new(big.Int).Mul(baseFee, big.NewInt(2)), tipCap)
	return &types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &to,
		Data:      callData,
	}
}

func (g *Gateway) readUint(ctx context.Context, to common.Address, callData []byte, method string) (*big.Int, error) {
	data, err := g.call(ctx, to, callData)
	if err != nil {
		return nil, err
	}
	if len(data) != 32 {
		return nil, fmt.Errorf("invalid response length for %s: got %d bytes", method, len(data))
	}
	return new(big.Int).SetBytes(data), nil
}

func (g *Gateway) call(parentCtx context.Context, to common.Address, callData []byte) ([]byte, error) {
	client, err := g.getClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get eth client: %w", err)
	}
	ctx, cancel := context.WithTimeout(parentCtx, defaultRPCTimeout)
	defer cancel()
	return client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: callData}, nil)
}
