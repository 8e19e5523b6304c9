package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stakingRewards/internal/config"
	"stakingRewards/internal/ledger"
	"stakingRewards/internal/model"
)

type runFunc func(ctx context.Context, cmd *cobra.Command, b *backend, logger *zap.Logger) error

func withBackend(fn runFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return withBackendConfig(cmd, cfg, fn)
	}
}

func withBackendConfig(cmd *cobra.Command, cfg config.Config, fn runFunc) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	return fn(ctx, cmd, b, logger)
}

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a staking pool",
		RunE: withBackend(func(ctx context.Context, cmd *cobra.Command, b *backend, _ *zap.Logger) error {
			params := ledger.InitializeParams{}
			var err error
			if raw, _ := cmd.Flags().GetString("id"); raw != "" {
				if params.ID, err = uuid.Parse(raw); err != nil {
					return fmt.Errorf("parse pool id: %w", err)
				}
			}
			if params.Owner, err = addressFlag(cmd, "owner"); err != nil {
				return err
			}
			if params.StakingToken, err = addressFlag(cmd, "staking-token"); err != nil {
				return err
			}
			if params.RewardsToken, err = addressFlag(cmd, "rewards-token"); err != nil {
				return err
			}
			params.RewardRate, _ = cmd.Flags().GetUint64("reward-rate")
			params.Duration, _ = cmd.Flags().GetUint64("duration")

			id, err := b.ledger.Initialize(ctx, params)
			if err != nil {
				return err
			}
			pool, err := b.ledger.Pool(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, pool)
		}),
	}
	cmd.Flags().String("id", "", "pool id (random when empty)")
	cmd.Flags().String("owner", "", "pool owner address")
	cmd.Flags().String("staking-token", "", "staking token address")
	cmd.Flags().String("rewards-token", "", "rewards token address")
	cmd.Flags().Uint64("reward-rate", 0, "reward tokens per second")
	cmd.Flags().Uint64("duration", 0, "reward period in seconds")
	return cmd
}

func newStakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stake",
		Short: "Stake tokens into a pool",
		RunE:  withBackend(amountOp((*ledger.Ledger).Stake)),
	}
	addStakerFlags(cmd, true)
	return cmd
}

func newWithdrawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw staked tokens from a pool",
		RunE:  withBackend(amountOp((*ledger.Ledger).Withdraw)),
	}
	addStakerFlags(cmd, true)
	return cmd
}

type ledgerAmountFunc func(l *ledger.Ledger, ctx context.Context, poolID model.PoolID, staker common.Address, amount uint64) error

func amountOp(op ledgerAmountFunc) runFunc {
	return func(ctx context.Context, cmd *cobra.Command, b *backend, _ *zap.Logger) error {
		poolID, staker, err := stakerFlags(cmd)
		if err != nil {
			return err
		}
		amount, _ := cmd.Flags().GetUint64("amount")
		if err := op(b.ledger, ctx, poolID, staker, amount); err != nil {
			return err
		}
		view, err := b.ledger.Staker(ctx, poolID, staker)
		if err != nil {
			return err
		}
		return printJSON(cmd, view)
	}
}

func newClaimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim accrued rewards",
		RunE: withBackend(func(ctx context.Context, cmd *cobra.Command, b *backend, _ *zap.Logger) error {
			poolID, staker, err := stakerFlags(cmd)
			if err != nil {
				return err
			}
			claimed, err := b.ledger.ClaimRewards(ctx, poolID, staker)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]string{"claimed": fmt.Sprintf("%d", claimed)})
		}),
	}
	addStakerFlags(cmd, false)
	return cmd
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a pool or a staker account",
		RunE: withBackend(func(ctx context.Context, cmd *cobra.Command, b *backend, _ *zap.Logger) error {
			poolID, err := poolFlag(cmd)
			if err != nil {
				return err
			}
			if raw, _ := cmd.Flags().GetString("staker"); raw != "" {
				staker, err := addressFlag(cmd, "staker")
				if err != nil {
					return err
				}
				view, err := b.ledger.Staker(ctx, poolID, staker)
				if err != nil {
					return err
				}
				return printJSON(cmd, view)
			}
			pool, err := b.ledger.Pool(ctx, poolID)
			if err != nil {
				return err
			}
			return printJSON(cmd, pool)
		}),
	}
	cmd.Flags().String("pool", "", "pool id")
	cmd.Flags().String("staker", "", "staker address (shows the pool when empty)")
	return cmd
}

func newFundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fund",
		Short: "Credit tokens to a custody account",
		Long:  "Credit tokens to a staker custody account (--to) or to a pool vault (--pool with --vault stake|rewards).",
		RunE: withBackend(func(ctx context.Context, cmd *cobra.Command, b *backend, logger *zap.Logger) error {
			asset, err := addressFlag(cmd, "asset")
			if err != nil {
				return err
			}
			account, err := fundAccount(cmd)
			if err != nil {
				return err
			}
			amount, _ := cmd.Flags().GetUint64("amount")
			if amount == 0 {
				return fmt.Errorf("amount must be positive")
			}
			if err := b.credit(ctx, asset, account, amount); err != nil {
				return err
			}
			balance, err := b.balance(ctx, asset, account)
			if err != nil {
				return err
			}
			logger.Info("custody funded",
				zap.String("account", string(account)),
				zap.String("asset", asset.Hex()),
				zap.Uint64("amount", amount),
			)
			return printJSON(cmd, model.Balance{Account: account, Asset: asset, Amount: balance})
		}),
	}
	cmd.Flags().String("asset", "", "token address")
	cmd.Flags().String("to", "", "staker address to credit")
	cmd.Flags().String("pool", "", "pool id whose vault is credited")
	cmd.Flags().String("vault", "rewards", "pool vault (stake, rewards)")
	cmd.Flags().Uint64("amount", 0, "amount in base units")
	return cmd
}

func fundAccount(cmd *cobra.Command) (model.AccountID, error) {
	if raw, _ := cmd.Flags().GetString("to"); raw != "" {
		addr, err := addressFlag(cmd, "to")
		if err != nil {
			return "", err
		}
		return model.StakerCustody(addr), nil
	}
	poolID, err := poolFlag(cmd)
	if err != nil {
		return "", fmt.Errorf("either --to or --pool is required: %w", err)
	}
	pool := model.Pool{ID: poolID}
	switch vault, _ := cmd.Flags().GetString("vault"); vault {
	case "rewards":
		return pool.RewardVault(), nil
	case "stake":
		return pool.StakeVault(), nil
	default:
		return "", fmt.Errorf("unknown vault %q", vault)
	}
}

func addStakerFlags(cmd *cobra.Command, withAmount bool) {
	cmd.Flags().String("pool", "", "pool id")
	cmd.Flags().String("staker", "", "staker address")
	if withAmount {
		cmd.Flags().Uint64("amount", 0, "amount in base units")
	}
}

func stakerFlags(cmd *cobra.Command) (model.PoolID, common.Address, error) {
	poolID, err := poolFlag(cmd)
	if err != nil {
		return uuid.Nil, common.Address{}, err
	}
	staker, err := addressFlag(cmd, "staker")
	if err != nil {
		return uuid.Nil, common.Address{}, err
	}
	return poolID, staker, nil
}

func poolFlag(cmd *cobra.Command) (model.PoolID, error) {
	raw, _ := cmd.Flags().GetString("pool")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--pool is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse pool id: %w", err)
	}
	return id, nil
}

func addressFlag(cmd *cobra.Command, name string) (common.Address, error) {
	raw, _ := cmd.Flags().GetString(name)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("--%s: invalid address %q", name, raw)
	}
	return common.HexToAddress(raw), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}

