package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"stakingRewards/internal/clock"
	"stakingRewards/internal/model"
	"stakingRewards/internal/observability/metrics"
	"stakingRewards/internal/rewards"
	"stakingRewards/internal/storage"
)

// Custody moves tokens between custodial accounts. A failed transfer must leave
// every balance unchanged.
type Custody interface {
	Transfer(ctx context.Context, asset common.Address, from, to model.AccountID, amount uint64) error
}

// Journal records committed operations.
type Journal interface {
	Append(records ...model.OperationRecord) error
}

// InitializeParams describes a new pool. A zero ID is replaced by a random one.
type InitializeParams struct {
	ID           model.PoolID
	Owner        common.Address
	StakingToken common.Address
	RewardsToken common.Address
	RewardRate   uint64
	Duration     uint64
}

// Ledger runs staking operations as atomic units against a store.
type Ledger struct {
	store   storage.Store
	custody Custody
	clock   clock.Clock
	journal Journal
	logger  *zap.Logger
}

// New builds a Ledger. custody may be nil when every store transaction provides
// its own custody; journal may be nil.
func New(store storage.Store, custody Custody, clk clock.Clock, journal Journal, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:   store,
		custody: custody,
		clock:   clk,
		journal: journal,
		logger:  logger,
	}
}

// Initialize creates a pool and returns its id.
func (l *Ledger) Initialize(ctx context.Context, params InitializeParams) (model.PoolID, error) {
	start := time.Now()
	if params.ID == uuid.Nil {
		params.ID = uuid.New()
	}

	pool, err := l.createPool(ctx, params)
	l.finish(model.OpInitialize, params.ID, start, err, rewards.Transition{Pool: pool}, 0)
	if err != nil {
		return uuid.Nil, err
	}
	return pool.ID, nil
}

func (l *Ledger) createPool(ctx context.Context, params InitializeParams) (model.Pool, error) {
	now, err := l.clock.Now(ctx)
	if err != nil {
		return model.Pool{}, fmt.Errorf("read clock: %w", err)
	}
	pool, err := rewards.Initialize(rewards.PoolParams{
		ID:           params.ID,
		Owner:        params.Owner,
		StakingToken: params.StakingToken,
		RewardsToken: params.RewardsToken,
		RewardRate:   params.RewardRate,
		Duration:     params.Duration,
	}, now)
	if err != nil {
		return pool, err
	}
	if err := l.store.CreatePool(ctx, pool); err != nil {
		if errors.Is(err, storage.ErrPoolExists) {
			return pool, fmt.Errorf("pool %s: %w", pool.ID, rewards.ErrAlreadyInitialized)
		}
		return pool, fmt.Errorf("create pool: %w", err)
	}
	return pool, nil
}

// Stake deposits amount of the staking token for staker.
func (l *Ledger) Stake(ctx context.Context, poolID model.PoolID, staker common.Address, amount uint64) error {
	_, err := l.execute(ctx, model.OpStake, poolID, staker, amount,
		func(pool model.Pool, account model.StakerAccount, now uint64, transfer rewards.TransferFunc) (rewards.Transition, error) {
			return rewards.Stake(pool, account, amount, now, transfer)
		})
	return err
}

// Withdraw returns amount of staked principal to staker.
func (l *Ledger) Withdraw(ctx context.Context, poolID model.PoolID, staker common.Address, amount uint64) error {
	_, err := l.execute(ctx, model.OpWithdraw, poolID, staker, amount,
		func(pool model.Pool, account model.StakerAccount, now uint64, transfer rewards.TransferFunc) (rewards.Transition, error) {
			return rewards.Withdraw(pool, account, amount, now, transfer)
		})
	return err
}

// ClaimRewards pays out the staker's accrued rewards and returns the amount paid.
func (l *Ledger) ClaimRewards(ctx context.Context, poolID model.PoolID, staker common.Address) (uint64, error) {
	tr, err := l.execute(ctx, model.OpClaim, poolID, staker, 0,
		func(pool model.Pool, account model.StakerAccount, now uint64, transfer rewards.TransferFunc) (rewards.Transition, error) {
			return rewards.Claim(pool, account, now, transfer)
		})
	if err != nil {
		return 0, err
	}
	return tr.Claimed, nil
}

type applyFunc func(pool model.Pool, account model.StakerAccount, now uint64, transfer rewards.TransferFunc) (rewards.Transition, error)

// execute runs one operation as a store unit. The clock is read inside the unit,
// so a slow clock (the chain clock and its retries) holds the pool lock.
func (l *Ledger) execute(ctx context.Context, op model.Operation, poolID model.PoolID, staker common.Address, amount uint64, apply applyFunc) (rewards.Transition, error) {
	start := time.Now()
	var result rewards.Transition

	err := l.store.Update(ctx, poolID, func(tx storage.Tx) error {
		now, err := l.clock.Now(ctx)
		if err != nil {
			return fmt.Errorf("read clock: %w", err)
		}
		account, _, err := tx.Staker(staker)
		if err != nil {
			return fmt.Errorf("load staker: %w", err)
		}

		custody := l.custody
		if txCustody, ok := tx.(Custody); ok {
			custody = txCustody
		}
		if custody == nil {
			return errors.New("no custody configured")
		}
		transfer := func(asset common.Address, from, to model.AccountID, amount uint64) error {
			return custody.Transfer(ctx, asset, from, to, amount)
		}

		tr, err := apply(tx.Pool(), account, now, transfer)
		if err != nil {
			return err
		}

		if err := tx.PutPool(tr.Pool); err != nil {
			return fmt.Errorf("write pool: %w", err)
		}
		if tr.Staker.Closed() {
			err = tx.DeleteStaker(staker)
		} else {
			err = tx.PutStaker(tr.Staker)
		}
		if err != nil {
			return fmt.Errorf("write staker: %w", err)
		}
		result = tr
		return nil
	})

	l.finish(op, poolID, start, err, result, amount)
	if err != nil {
		return rewards.Transition{}, err
	}
	return result, nil
}

// finish records metrics, logs, and the journal entry of an operation.
func (l *Ledger) finish(op model.Operation, poolID model.PoolID, start time.Time, err error, tr rewards.Transition, amount uint64) {
	elapsed := time.Since(start)
	fields := []zap.Field{
		zap.String("operation", string(op)),
		zap.Stringer("pool", poolID),
		zap.Duration("elapsed", elapsed),
	}

	if err != nil {
		kind := rewards.KindOf(err)
		fields = append(fields, zap.Error(err), zap.Stringer("kind", kind))
		if kind == rewards.KindValidation {
			metrics.RecordOperation(string(op), metrics.Rejected, elapsed)
			l.logger.Info("operation rejected", fields...)
			return
		}
		metrics.RecordOperation(string(op), metrics.Error, elapsed)
		l.logger.Error("operation failed", fields...)
		return
	}

	metrics.RecordOperation(string(op), metrics.Success, elapsed)
	staker := tr.Staker.Staker
	switch op {
	case model.OpInitialize:
		staker = tr.Pool.Owner
	case model.OpClaim:
		amount = tr.Claimed
		metrics.RecordClaim(tr.Claimed)
	}

	record := model.OperationRecord{
		Operation:      op,
		PoolID:         tr.Pool.ID,
		Staker:         staker,
		Amount:         amount,
		Timestamp:      tr.Pool.UpdatedAt,
		RewardPerToken: tr.Pool.RewardPerTokenStored,
		TotalSupply:    tr.Pool.TotalSupply,
		StakerAmount:   tr.Staker.Amount,
		StakerRewards:  tr.Staker.Rewards,
		IngestedAt:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	l.logger.Info("operation committed",
		append(fields,
			zap.String("staker", record.Staker.Hex()),
			zap.Uint64("amount", record.Amount),
			zap.Uint64("total_supply", record.TotalSupply),
			zap.Uint64("reward_per_token", record.RewardPerToken),
		)...,
	)

	if l.journal == nil {
		return
	}
	if err := l.journal.Append(record); err != nil {
		l.logger.Warn("journal append failed", zap.Error(err), zap.String("operation", string(op)))
	}
}

// Pool returns the stored pool state.
func (l *Ledger) Pool(ctx context.Context, poolID model.PoolID) (model.Pool, error) {
	var pool model.Pool
	err := l.store.View(ctx, poolID, func(tx storage.Tx) error {
		pool = tx.Pool()
		return nil
	})
	return pool, err
}

// StakerView is a staker account together with the rewards it would hold if
// settled now.
type StakerView struct {
	Account model.StakerAccount `json:"account"`
	Exists  bool                `json:"exists"`
	Earned  uint64              `json:"earned,string"`
	AsOf    uint64              `json:"as_of"`
}

// Staker returns the stored account of staker and its pending rewards as of now.
func (l *Ledger) Staker(ctx context.Context, poolID model.PoolID, staker common.Address) (StakerView, error) {
	var view StakerView
	err := l.store.View(ctx, poolID, func(tx storage.Tx) error {
		now, err := l.clock.Now(ctx)
		if err != nil {
			return fmt.Errorf("read clock: %w", err)
		}
		account, found, err := tx.Staker(staker)
		if err != nil {
			return fmt.Errorf("load staker: %w", err)
		}
		earned, err := rewards.Earned(tx.Pool(), account, now)
		if err != nil {
			return err
		}
		view = StakerView{Account: account, Exists: found, Earned: earned, AsOf: now}
		return nil
	})
	return view, err
}

// Earned returns the rewards staker could claim now.
func (l *Ledger) Earned(ctx context.Context, poolID model.PoolID, staker common.Address) (uint64, error) {
	view, err := l.Staker(ctx, poolID, staker)
	if err != nil {
		return 0, err
	}
	return view.Earned, nil
}
