// Command hodlock is the command-line client for the Hodlock time-lock
// pools: it lists pools and positions, runs the deposit flow, and performs
// the single-write position operations.
package main

import (
	"crypto/ecdsa"
	"fmt"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Olcmyk/Hodlock/catalog"
	"github.com/Olcmyk/Hodlock/gateway"
	"github.com/Olcmyk/Hodlock/referral"
)

var currentUser = func() *user.User {
	usr, err := user.Current()
	if err != nil {
		log.Fatal(err)
	}
	return usr
}()

var defaultWorkDir = filepath.Join(currentUser.HomeDir, ".hodlock")

var cmdMain = &cobra.Command{
	Use:   "hodlock",
	Short: "Client for Hodlock time-lock pools",
	Run:   printUsageAndExit1,
}

var flagMain struct {
	WorkDir string
	RPCURL  string
	Factory string
	ChainID int64
	KeyFile string
	Allow   []string
	Verbose bool
}

func init() {
	cmdMain.PersistentFlags().StringVarP(&flagMain.WorkDir, "work-dir", "w", defaultWorkDir, "Working directory for configuration and local data")
	cmdMain.PersistentFlags().StringVar(&flagMain.RPCURL, "rpc", "", "Ethereum JSON-RPC endpoint")
	cmdMain.PersistentFlags().StringVar(&flagMain.Factory, "factory", "", "Hodlock factory contract address")
	cmdMain.PersistentFlags().Int64Var(&flagMain.ChainID, "chain-id", 0, "Chain ID used for transaction signing")
	cmdMain.PersistentFlags().StringVar(&flagMain.KeyFile, "keyfile", "", "Path to the hex-encoded signing key")
	cmdMain.PersistentFlags().StringSliceVar(&flagMain.Allow, "allow-token", nil, "Restrict the catalog to these token addresses (repeatable; empty allows all)")
	cmdMain.PersistentFlags().BoolVarP(&flagMain.Verbose, "verbose", "v", false, "Enable debug logging")
}

func main() {
	if err := cmdMain.Execute(); err != nil {
		os.Exit(1)
	}
}

func printUsageAndExit1(cmd *cobra.Command, args []string) {
	_ = cmd.Usage()
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func check(err error) {
	if err != nil {
		fatalf("%v", err)
	}
}

func checkf(err error, format string, otherArgs ...interface{}) {
	if err != nil {
		fatalf(format+": %v", append(otherArgs, err)...)
	}
}

// settings is the merged view of flags, environment and the optional
// config file in the working directory.
type settings struct {
	RPCURL  string
	Factory common.Address
	ChainID *big.Int
	KeyFile string
	WorkDir string
	Allow   []string
}

func loadSettings() *settings {
	v := viper.New()
	v.SetConfigName("hodlock")
	v.SetConfigType("yaml")
	v.AddConfigPath(flagMain.WorkDir)
	v.SetEnvPrefix("hodlock")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			checkf(err, "failed to read config from %s", flagMain.WorkDir)
		}
	}

	rpcURL := flagMain.RPCURL
	if rpcURL == "" {
		rpcURL = v.GetString("rpc")
	}
	factory := flagMain.Factory
	if factory == "" {
		factory = v.GetString("factory")
	}
	chainID := flagMain.ChainID
	if chainID == 0 {
		chainID = v.GetInt64("chain-id")
	}
	keyFile := flagMain.KeyFile
	if keyFile == "" {
		keyFile = v.GetString("keyfile")
	}
	allow := flagMain.Allow
	if len(allow) == 0 {
		allow = v.GetStringSlice("allow-tokens")
	}

	if rpcURL == "" {
		fatalf("an RPC endpoint is required (--rpc, HODLOCK_RPC, or the config file)")
	}
	if !common.IsHexAddress(factory) {
		fatalf("a valid factory address is required (--factory, HODLOCK_FACTORY, or the config file)")
	}

	return &settings{
		RPCURL:  rpcURL,
		Factory: common.HexToAddress(factory),
		ChainID: big.NewInt(chainID),
		KeyFile: keyFile,
		WorkDir: flagMain.WorkDir,
		Allow:   allow,
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagMain.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func dialClient(s *settings) ethclients.ETHClient {
	client, err := ethclient.Dial(s.RPCURL)
	checkf(err, "failed to connect to %s", s.RPCURL)
	return client
}

func loadKey(s *settings) *ecdsa.PrivateKey {
	if s.KeyFile == "" {
		fatalf("a signing key is required for this command (--keyfile, HODLOCK_KEYFILE, or the config file)")
	}
	if s.ChainID.Sign() <= 0 {
		fatalf("a chain id is required for this command (--chain-id, HODLOCK_CHAIN_ID, or the config file)")
	}
	key, err := crypto.LoadECDSA(s.KeyFile)
	checkf(err, "failed to load signing key from %s", s.KeyFile)
	return key
}

func newGateway(s *settings) *gateway.Gateway {
	client := dialClient(s)
	gw, err := gateway.New(gateway.Config{
		GetClient: func() (ethclients.ETHClient, error) { return client, nil },
		Key:       loadKey(s),
		ChainID:   s.ChainID,
	})
	check(err)
	return gw
}

func allowlistFunc(s *settings) catalog.AllowlistFunc {
	if len(s.Allow) == 0 {
		return func(common.Address) bool { return true }
	}
	allowed := make(map[common.Address]struct{}, len(s.Allow))
	for _, raw := range s.Allow {
		if !common.IsHexAddress(raw) {
			fatalf("invalid allow-token address %q", raw)
		}
		allowed[common.HexToAddress(raw)] = struct{}{}
	}
	return func(token common.Address) bool {
		_, ok := allowed[token]
		return ok
	}
}

func openReferralStore(s *settings) *referral.Store {
	store, err := referral.Open(filepath.Join(s.WorkDir, "referral"))
	checkf(err, "failed to open referral store in %s", s.WorkDir)
	return store
}

// parseAddressArg accepts either a hex address or a catalog symbol.
func parseAddressArg(arg string, cat *catalog.Catalog) (catalog.PoolDescriptor, bool) {
	if common.IsHexAddress(arg) {
		addr := common.HexToAddress(arg)
		if desc, ok := cat.ByPool(addr); ok {
			return desc, true
		}
		for _, desc := range cat.Pools() {
			if desc.TokenAddress == addr {
				return desc, true
			}
		}
		return catalog.PoolDescriptor{}, false
	}
	if desc, ok := cat.BySymbol(arg); ok {
		return desc, true
	}
	return cat.BySymbol(strings.ToUpper(arg))
}
