package main

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"stakingRewards/internal/chain"
	"stakingRewards/internal/clock"
	"stakingRewards/internal/config"
	"stakingRewards/internal/journal"
	"stakingRewards/internal/ledger"
	"stakingRewards/internal/model"
	"stakingRewards/internal/storage/file"
	"stakingRewards/internal/storage/postgres"
)

// backend bundles the ledger with the custody it settles against.
type backend struct {
	ledger  *ledger.Ledger
	credit  func(ctx context.Context, asset common.Address, account model.AccountID, amount uint64) error
	balance func(ctx context.Context, asset common.Address, account model.AccountID) (uint64, error)
	closers []func()
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	b := &backend{}

	clk, err := openClock(ctx, cfg, logger, b)
	if err != nil {
		b.Close()
		return nil, err
	}

	var j ledger.Journal
	if cfg.JournalPath != "" {
		jl, err := journal.Open(cfg.JournalPath)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.closers = append(b.closers, func() {
			if err := jl.Close(); err != nil {
				logger.Warn("journal close failed", zap.Error(err))
			}
		})
		j = jl
	}

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN, uint(cfg.MaxRetries), logger)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, store.Close)
		if err := store.EnsureSchema(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.ledger = ledger.New(store, store, clk, j, logger)
		b.credit = store.Credit
		b.balance = store.Balance
		logger.Debug("backend ready", zap.String("backend", "postgres"))
		return b, nil
	}

	store, err := file.Open(cfg.StatePath)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.ledger = ledger.New(store, store.Bank(), clk, j, logger)
	b.credit = func(_ context.Context, asset common.Address, account model.AccountID, amount uint64) error {
		return store.Credit(asset, account, amount)
	}
	b.balance = func(_ context.Context, asset common.Address, account model.AccountID) (uint64, error) {
		return store.Bank().Balance(asset, account), nil
	}
	logger.Debug("backend ready", zap.String("backend", "file"), zap.String("state", cfg.StatePath))
	return b, nil
}

func openClock(ctx context.Context, cfg config.Config, logger *zap.Logger, b *backend) (clock.Clock, error) {
	if cfg.At != 0 {
		return clock.NewManual(cfg.At), nil
	}
	if cfg.Clock != config.ClockChain {
		return clock.NewSystem(), nil
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	b.closers = append(b.closers, client.Close)

	chainID, err := client.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	logger.Info("chain clock", zap.String("rpc", cfg.RPCURL), zap.String("chain_id", chainID.String()))
	return clock.NewChain(client, uint(cfg.MaxRetries), cfg.RetryBackoff, logger), nil
}
