package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"stakingRewards/internal/custody"
	"stakingRewards/internal/model"
	"stakingRewards/internal/storage"
)

//go:embed schema.sql
var schema string

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeCheckViolation       = "23514"

	defaultRetryDelay = 20 * time.Millisecond
)

// Store provides Postgres persistence for pools, staker accounts, and custody
// balances.
type Store struct {
	pool       *pgxpool.Pool
	maxRetries uint
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewStore connects to dsn. A unit that hits a serialization failure or deadlock
// is retried up to maxRetries times.
func NewStore(ctx context.Context, dsn string, maxRetries uint, logger *zap.Logger) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{
		pool:       pool,
		maxRetries: maxRetries,
		retryDelay: defaultRetryDelay,
		logger:     logger,
	}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// CreatePool inserts a new pool.
func (s *Store) CreatePool(ctx context.Context, p model.Pool) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO staking_pools (
			pool_id, owner, staking_token, rewards_token, duration, total_supply,
			reward_rate, reward_per_token_stored, updated_at, finish_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (pool_id) DO NOTHING
	`,
		p.ID.String(),
		p.Owner.Hex(),
		p.StakingToken.Hex(),
		p.RewardsToken.Hex(),
		numeric(p.Duration),
		numeric(p.TotalSupply),
		numeric(p.RewardRate),
		numeric(p.RewardPerTokenStored),
		numeric(p.UpdatedAt),
		numeric(p.FinishAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrPoolExists
	}
	return nil
}

// Update runs fn in a transaction holding the pool row lock. Serialization
// failures and deadlocks restart the whole unit.
func (s *Store) Update(ctx context.Context, poolID model.PoolID, fn func(tx storage.Tx) error) error {
	return s.withRetry(ctx, func() error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(dbTx pgx.Tx) error {
			p, err := loadPool(ctx, dbTx, poolID, true)
			if err != nil {
				return err
			}
			return fn(&pgTx{ctx: ctx, tx: dbTx, pool: p})
		})
	})
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, poolID model.PoolID, fn func(tx storage.Tx) error) error {
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(dbTx pgx.Tx) error {
		p, err := loadPool(ctx, dbTx, poolID, false)
		if err != nil {
			return err
		}
		return fn(&pgTx{ctx: ctx, tx: dbTx, pool: p, readOnly: true})
	})
}

// Transfer moves custody balances in a transaction of its own.
func (s *Store) Transfer(ctx context.Context, asset common.Address, from, to model.AccountID, amount uint64) error {
	return s.withRetry(ctx, func() error {
		return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(dbTx pgx.Tx) error {
			return transfer(ctx, dbTx, asset, from, to, amount)
		})
	})
}

// Credit funds a custody account.
func (s *Store) Credit(ctx context.Context, asset common.Address, account model.AccountID, amount uint64) error {
	return credit(ctx, s.pool, asset, account, amount)
}

// Balance returns a custody balance.
func (s *Store) Balance(ctx context.Context, asset common.Address, account model.AccountID) (uint64, error) {
	var n pgtype.Numeric
	row := s.pool.QueryRow(ctx, `SELECT amount FROM custody_balances WHERE account_id=$1 AND asset=$2`, string(account), asset.Hex())
	if err := row.Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return toUint64(n)
}

func (s *Store) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(s.maxRetries+1),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isRetryable),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("transaction conflict, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}

func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func loadPool(ctx context.Context, q querier, poolID model.PoolID, lock bool) (model.Pool, error) {
	query := `
		SELECT pool_id, owner, staking_token, rewards_token, duration, total_supply,
			reward_rate, reward_per_token_stored, updated_at, finish_at
		FROM staking_pools WHERE pool_id=$1`
	if lock {
		query += ` FOR UPDATE`
	}

	var (
		id, owner, stakingToken, rewardsToken string
		nums                                  [6]pgtype.Numeric
	)
	row := q.QueryRow(ctx, query, poolID.String())
	if err := row.Scan(&id, &owner, &stakingToken, &rewardsToken,
		&nums[0], &nums[1], &nums[2], &nums[3], &nums[4], &nums[5]); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Pool{}, storage.ErrPoolNotFound
		}
		return model.Pool{}, fmt.Errorf("load pool: %w", err)
	}

	parsedID, err := uuid.Parse(id)
	if err != nil {
		return model.Pool{}, fmt.Errorf("parse pool id: %w", err)
	}
	var vals [6]uint64
	for i, n := range nums {
		if vals[i], err = toUint64(n); err != nil {
			return model.Pool{}, fmt.Errorf("pool %s: %w", id, err)
		}
	}

	return model.Pool{
		ID:                   parsedID,
		Owner:                common.HexToAddress(owner),
		StakingToken:         common.HexToAddress(stakingToken),
		RewardsToken:         common.HexToAddress(rewardsToken),
		Duration:             vals[0],
		TotalSupply:          vals[1],
		RewardRate:           vals[2],
		RewardPerTokenStored: vals[3],
		UpdatedAt:            vals[4],
		FinishAt:             vals[5],
	}, nil
}

func transfer(ctx context.Context, q querier, asset common.Address, from, to model.AccountID, amount uint64) error {
	tag, err := q.Exec(ctx, `
		UPDATE custody_balances SET amount = amount - $3, modified_ts = now()
		WHERE account_id=$1 AND asset=$2 AND amount >= $3
	`, string(from), asset.Hex(), numeric(amount))
	if err != nil {
		return fmt.Errorf("debit %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 && amount > 0 {
		return fmt.Errorf("%w: %s needs %d of %s", custody.ErrInsufficientFunds, from, amount, asset.Hex())
	}
	return credit(ctx, q, asset, to, amount)
}

func credit(ctx context.Context, q querier, asset common.Address, account model.AccountID, amount uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO custody_balances (account_id, asset, amount, modified_ts)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id, asset)
		DO UPDATE SET amount = custody_balances.amount + EXCLUDED.amount, modified_ts = now()
	`, string(account), asset.Hex(), numeric(amount))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeCheckViolation {
			return fmt.Errorf("%w: %s", custody.ErrBalanceOverflow, account)
		}
		return fmt.Errorf("credit %s: %w", account, err)
	}
	return nil
}

// pgTx is a unit of work inside a database transaction. It also serves as the
// custody for the unit, so transfers commit or roll back with the ledger rows.
type pgTx struct {
	ctx      context.Context
	tx       pgx.Tx
	pool     model.Pool
	readOnly bool
}

func (t *pgTx) Pool() model.Pool {
	return t.pool
}

func (t *pgTx) Staker(staker common.Address) (model.StakerAccount, bool, error) {
	var amount, paid, rewards pgtype.Numeric
	row := t.tx.QueryRow(t.ctx, `
		SELECT amount, reward_per_token_paid, rewards
		FROM staker_accounts WHERE pool_id=$1 AND staker=$2
	`, t.pool.ID.String(), staker.Hex())
	if err := row.Scan(&amount, &paid, &rewards); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.NewStakerAccount(t.pool.ID, staker), false, nil
		}
		return model.StakerAccount{}, false, err
	}

	account := model.NewStakerAccount(t.pool.ID, staker)
	var err error
	if account.Amount, err = toUint64(amount); err != nil {
		return model.StakerAccount{}, false, err
	}
	if account.RewardPerTokenPaid, err = toUint64(paid); err != nil {
		return model.StakerAccount{}, false, err
	}
	if account.Rewards, err = toUint64(rewards); err != nil {
		return model.StakerAccount{}, false, err
	}
	return account, true, nil
}

func (t *pgTx) PutPool(p model.Pool) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.Exec(t.ctx, `
		UPDATE staking_pools SET
			total_supply = $2,
			reward_per_token_stored = $3,
			updated_at = $4,
			modified_ts = now()
		WHERE pool_id = $1
	`, p.ID.String(), numeric(p.TotalSupply), numeric(p.RewardPerTokenStored), numeric(p.UpdatedAt))
	if err != nil {
		return err
	}
	t.pool = p
	return nil
}

func (t *pgTx) PutStaker(account model.StakerAccount) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.Exec(t.ctx, `
		INSERT INTO staker_accounts (pool_id, staker, amount, reward_per_token_paid, rewards, modified_ts)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (pool_id, staker)
		DO UPDATE SET
			amount = EXCLUDED.amount,
			reward_per_token_paid = EXCLUDED.reward_per_token_paid,
			rewards = EXCLUDED.rewards,
			modified_ts = now()
	`,
		t.pool.ID.String(),
		account.Staker.Hex(),
		numeric(account.Amount),
		numeric(account.RewardPerTokenPaid),
		numeric(account.Rewards),
	)
	return err
}

func (t *pgTx) DeleteStaker(staker common.Address) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	_, err := t.tx.Exec(t.ctx, `DELETE FROM staker_accounts WHERE pool_id=$1 AND staker=$2`, t.pool.ID.String(), staker.Hex())
	return err
}

// Transfer moves custody balances inside the unit's transaction.
func (t *pgTx) Transfer(ctx context.Context, asset common.Address, from, to model.AccountID, amount uint64) error {
	if t.readOnly {
		return storage.ErrReadOnly
	}
	return transfer(ctx, t.tx, asset, from, to, amount)
}
