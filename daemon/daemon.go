// Package daemon assembles the swap coordinator, auction engine and RPC
// surface into a runnable service.
package daemon

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/crossmesh/fusion/daemon/rpc"
	"github.com/crossmesh/fusion/pkg/auction"
	"github.com/crossmesh/fusion/pkg/coordinator"
	"github.com/crossmesh/fusion/pkg/escrow"
	"github.com/crossmesh/fusion/pkg/ledger"
	"github.com/crossmesh/fusion/pkg/ledger/evm"
	"github.com/crossmesh/fusion/pkg/ledger/sim"
	"github.com/crossmesh/fusion/pkg/registry"
	"github.com/crossmesh/fusion/pkg/retry"
	"github.com/crossmesh/fusion/pkg/signer"
	"github.com/crossmesh/fusion/pkg/store"
	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Daemon struct {
	config      Config
	coordinator *coordinator.Coordinator
	auctions    *auction.Engine
	store       store.Store
	server      rpc.RPC
	logger      *zap.Logger
}

func New(config Config, logger *zap.Logger) (*Daemon, error) {
	db, err := gorm.Open(sqlite.Open(config.DB), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, err
	}
	str, err := store.NewStore(db)
	if err != nil {
		return nil, err
	}

	var reg registry.Registry
	if config.RedisURL != "" {
		reg, err = registry.NewRedis(config.RedisURL)
		if err != nil {
			return nil, err
		}
	} else {
		reg = registry.NewInMemory()
	}

	source, err := buildEscrow(config.Source, logger)
	if err != nil {
		return nil, fmt.Errorf("source chain: %v", err)
	}
	dest, err := buildEscrow(config.Dest, logger)
	if err != nil {
		return nil, fmt.Errorf("destination chain: %v", err)
	}

	coordConfig := coordinator.DefaultConfig()
	if config.PollSeconds > 0 {
		coordConfig.PollInterval = time.Duration(config.PollSeconds) * time.Second
	}
	if config.MarginSeconds > 0 {
		coordConfig.SettleMargin = time.Duration(config.MarginSeconds) * time.Second
	}

	// deliver-out-of-band is deployment specific; the daemon's channel is the
	// store, which the resolver reads back with getSecret once the swap
	// reaches Disclosed
	disclose := func(swapID common.Hash, resolver string, secret []byte) error {
		logger.Info("secret released to resolver",
			zap.String("swap", swapID.Hex()),
			zap.String("resolver", resolver))
		return nil
	}

	coord := coordinator.New(source, dest, reg, str, coordConfig, disclose, logger)

	// auction prices follow the destination ledger's clock
	clock := func() time.Time {
		now, err := dest.Adapter().Now(context.Background())
		if err != nil {
			return time.Now()
		}
		return now
	}
	auctions := auction.NewEngine(clock, logger)

	server := rpc.NewServer(config.RPCUser, config.RPCPassword, logger)
	for _, method := range rpc.Methods(rpc.Core{
		Coordinator: coord,
		Auctions:    auctions,
		Store:       str,
		Logger:      logger,
	}) {
		server.AddMethod(method)
	}

	return &Daemon{
		config:      config,
		coordinator: coord,
		auctions:    auctions,
		store:       str,
		server:      server,
		logger:      logger,
	}, nil
}

// Run re-drives unfinished swaps and then serves RPC until the process exits.
func (d *Daemon) Run() error {
	go func() {
		if err := d.coordinator.Recover(context.Background()); err != nil {
			d.logger.Error("recovery pass failed", zap.Error(err))
		}
	}()
	d.logger.Info("daemon listening", zap.String("addr", d.config.Addr))
	return d.server.Run(d.config.Addr)
}

func buildEscrow(config ChainConfig, logger *zap.Logger) (*escrow.Escrow, error) {
	var (
		adapter ledger.Adapter
		signCtx *signer.Signer
	)
	switch config.Kind {
	case "sim":
		finality := time.Duration(config.FinalitySeconds) * time.Second
		chain := sim.New(config.Name, time.Now(), finality, logger)
		for _, fund := range config.Funds {
			amount, ok := new(big.Int).SetString(fund.Amount, 10)
			if !ok {
				return nil, fmt.Errorf("bad fund amount %q for account %q", fund.Amount, fund.Account)
			}
			chain.Fund(fund.Token, fund.Account, amount)
		}
		adapter = chain
		signCtx = signer.NewAccount(config.Account, nil)
	case "evm":
		client, err := ethclient.Dial(config.RPC)
		if err != nil {
			return nil, err
		}
		adapter, err = evm.New(evm.Config{
			Name:          config.Name,
			Contract:      common.HexToAddress(config.Contract),
			Confirmations: config.Confirmations,
		}, client, logger)
		if err != nil {
			return nil, err
		}
		key, err := gethcrypto.HexToECDSA(config.Key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %v", err)
		}
		signCtx = signer.New(key)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adapter.(*evm.Adapter).SyncSequence(ctx, signCtx); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown chain kind %q", config.Kind)
	}
	return escrow.New(adapter, signCtx, retry.Default(), logger), nil
}
