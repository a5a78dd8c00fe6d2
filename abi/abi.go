// Package abi holds the parsed contract interfaces for the Hodlock protocol.
// Method IDs are derived from the parsed ABI rather than hardcoded hashes,
// which is safer and more maintainable.
package abi

import (
	"strings"

	ethabi "github.com/ethereum/go-ethereum/accounts/abi"
)

var (
	// HodlockABI describes a single lock-pool contract.
	HodlockABI = mustParse(hodlockJSON)
	// FactoryABI describes the registry that deploys and enumerates pools.
	FactoryABI = mustParse(factoryJSON)
	// ERC20ABI is the minimal token surface the client needs.
	ERC20ABI = mustParse(erc20JSON)
)

func mustParse(definition string) ethabi.ABI {
	parsed, err := ethabi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(err)
	}
	return parsed
}

const hodlockJSON = `[
	{"type":"function","name":"deposit","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"},{"name":"lockSeconds","type":"uint256"},{"name":"penaltyBps","type":"uint256"},{"name":"referrer","type":"address"}],"outputs":[]},
	{"type":"function","name":"withdraw","stateMutability":"nonpayable","inputs":[{"name":"depositId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"withdrawEarly","stateMutability":"nonpayable","inputs":[{"name":"depositId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimReward","stateMutability":"nonpayable","inputs":[{"name":"depositId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"claimReferrerRewards","stateMutability":"nonpayable","inputs":[],"outputs":[]},
	{"type":"function","name":"mintNFT","stateMutability":"nonpayable","inputs":[{"name":"depositId","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"pendingReward","stateMutability":"view","inputs":[{"name":"_user","type":"address"},{"name":"depositId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"getDepositCount","stateMutability":"view","inputs":[{"name":"_user","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"userDeposits","stateMutability":"view","inputs":[{"name":"","type":"address"},{"name":"","type":"uint256"}],"outputs":[{"name":"amount","type":"uint256"},{"name":"originalAmount","type":"uint256"},{"name":"share","type":"uint256"},{"name":"rewardDebt","type":"uint256"},{"name":"depositTimestamp","type":"uint256"},{"name":"unlockTimestamp","type":"uint256"},{"name":"penaltyBps","type":"uint256"},{"name":"withdrawn","type":"bool"}]},
	{"type":"function","name":"userReferrer","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"referrerRewards","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"hasNFT","stateMutability":"view","inputs":[{"name":"","type":"address"},{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"token","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"totalShare","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"calculateShare","stateMutability":"pure","inputs":[{"name":"amount","type":"uint256"},{"name":"lockSeconds","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const factoryJSON = `[
	{"type":"function","name":"createHodlock","stateMutability":"nonpayable","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"hodlock","type":"address"}]},
	{"type":"function","name":"getHodlock","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"isHodlock","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allHodlocksLength","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allHodlocks","stateMutability":"view","inputs":[{"name":"","type":"uint256"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"canCreateHodlock","stateMutability":"view","inputs":[{"name":"token","type":"address"}],"outputs":[{"name":"canCreate","type":"bool"},{"name":"reason","type":"string"}]}
]`

const erc20JSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
	{"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]}
]`
