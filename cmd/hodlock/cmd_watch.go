package main

import (
	"net/http"
	"time"

	ethclients "github.com/Iwinswap/iwinswap-ethclients"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	hodlock "github.com/Olcmyk/Hodlock"
	"github.com/Olcmyk/Hodlock/catalog"
	"github.com/Olcmyk/Hodlock/positions"
)

var cmdWatch = &cobra.Command{
	Use:   "watch [owner address]",
	Short: "Continuously track pools and positions",
	Long: `Continuously track pools and positions.

Refreshes the pool catalog on an interval, lists the owner's positions after
each refresh, and optionally serves Prometheus metrics. The owner defaults
to the configured signing key's address.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runWatch,
}

var flagWatch struct {
	Refresh     time.Duration
	MetricsAddr string
}

func init() {
	cmdWatch.Flags().DurationVar(&flagWatch.Refresh, "refresh", time.Minute, "Catalog refresh interval")
	cmdWatch.Flags().StringVar(&flagWatch.MetricsAddr, "metrics", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	cmdMain.AddCommand(cmdWatch)
}

func runWatch(cmd *cobra.Command, args []string) {
	s := loadSettings()
	ctx := cmd.Context()
	logger := newLogger()

	var owner common.Address
	if len(args) == 1 {
		if !common.IsHexAddress(args[0]) {
			fatalf("invalid owner address %q", args[0])
		}
		owner = common.HexToAddress(args[0])
	} else {
		owner = crypto.PubkeyToAddress(loadKey(s).PublicKey)
	}

	client := dialClient(s)
	resolver, err := catalog.NewResolver(s.Factory, allowlistFunc(s))
	check(err)
	aggregator := positions.NewAggregator()

	registry := prometheus.NewRegistry()
	if flagWatch.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(flagWatch.MetricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	system, err := hodlock.NewHodlockSystem(ctx, &hodlock.Config{
		SystemName:       "hodlock_cli",
		PrometheusReg:    registry,
		Factory:          s.Factory,
		GetClient:        func() (ethclients.ETHClient, error) { return client, nil },
		ResolveCatalog:   resolver.Resolve,
		ListPositions:    aggregator.List,
		ErrorHandler:     func(err error) {},
		RefreshFrequency: flagWatch.Refresh,
		Logger:           logger,
	})
	check(err)

	ticker := time.NewTicker(flagWatch.Refresh)
	defer ticker.Stop()
	for {
		list, err := system.Positions(ctx, owner)
		if err != nil {
			logger.Error("failed to list positions", "owner", owner.Hex(), "error", err)
		} else {
			logger.Info("positions", "owner", owner.Hex(), "pools", system.Catalog().Len(), "open", len(list))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
