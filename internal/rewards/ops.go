package rewards

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"stakingRewards/internal/model"
)

// TransferFunc moves amount of asset between two custody accounts. It must either
// complete or leave every balance unchanged.
type TransferFunc func(asset common.Address, from, to model.AccountID, amount uint64) error

// PoolParams describes a pool to create.
type PoolParams struct {
	ID           model.PoolID
	Owner        common.Address
	StakingToken common.Address
	RewardsToken common.Address
	RewardRate   uint64
	Duration     uint64
}

// Transition is the state produced by a successful operation.
type Transition struct {
	Pool   model.Pool
	Staker model.StakerAccount
	// Claimed is the reward amount paid out by a claim.
	Claimed uint64
}

// Initialize builds a new pool starting at now.
func Initialize(params PoolParams, now uint64) (model.Pool, error) {
	finishAt, ok := add(now, params.Duration)
	if !ok {
		return model.Pool{}, fmt.Errorf("finish time %d + %d: %w", now, params.Duration, ErrMath)
	}
	return model.Pool{
		ID:           params.ID,
		Owner:        params.Owner,
		StakingToken: params.StakingToken,
		RewardsToken: params.RewardsToken,
		Duration:     params.Duration,
		RewardRate:   params.RewardRate,
		UpdatedAt:    now,
		FinishAt:     finishAt,
	}, nil
}

// Stake moves amount of the staking token from the staker into the stake vault.
func Stake(pool model.Pool, staker model.StakerAccount, amount, now uint64, transfer TransferFunc) (Transition, error) {
	if amount == 0 {
		return Transition{}, ErrAmountIsZero
	}

	pool, staker, err := resyncAndSettle(pool, staker, now)
	if err != nil {
		return Transition{}, err
	}

	stakedAmount, ok := add(staker.Amount, amount)
	if !ok {
		return Transition{}, fmt.Errorf("staked amount %d + %d: %w", staker.Amount, amount, ErrMath)
	}
	totalSupply, ok := add(pool.TotalSupply, amount)
	if !ok {
		return Transition{}, fmt.Errorf("total supply %d + %d: %w", pool.TotalSupply, amount, ErrMath)
	}

	if err := transfer(pool.StakingToken, model.StakerCustody(staker.Staker), pool.StakeVault(), amount); err != nil {
		return Transition{}, fmt.Errorf("transfer stake: %w", err)
	}

	staker.Amount = stakedAmount
	pool.TotalSupply = totalSupply
	return Transition{Pool: pool, Staker: staker}, nil
}

// Withdraw returns amount of staked principal to the staker.
func Withdraw(pool model.Pool, staker model.StakerAccount, amount, now uint64, transfer TransferFunc) (Transition, error) {
	if amount == 0 {
		return Transition{}, ErrAmountIsZero
	}
	if staker.Amount < amount {
		return Transition{}, ErrInsufficientStakedAmount
	}
	if pool.TotalSupply < staker.Amount {
		return Transition{}, fmt.Errorf("total supply %d below staked amount %d: %w", pool.TotalSupply, staker.Amount, ErrInvariant)
	}

	pool, staker, err := resyncAndSettle(pool, staker, now)
	if err != nil {
		return Transition{}, err
	}

	if err := transfer(pool.StakingToken, pool.StakeVault(), model.StakerCustody(staker.Staker), amount); err != nil {
		return Transition{}, fmt.Errorf("transfer withdrawal: %w", err)
	}

	staker.Amount -= amount
	pool.TotalSupply -= amount
	return Transition{Pool: pool, Staker: staker}, nil
}

// Claim pays out every reward the staker has accrued up to now.
func Claim(pool model.Pool, staker model.StakerAccount, now uint64, transfer TransferFunc) (Transition, error) {
	pool, staker, err := resyncAndSettle(pool, staker, now)
	if err != nil {
		return Transition{}, err
	}

	claimed := staker.Rewards
	if claimed == 0 {
		return Transition{}, ErrNoRewards
	}

	if err := transfer(pool.RewardsToken, pool.RewardVault(), model.StakerCustody(staker.Staker), claimed); err != nil {
		return Transition{}, fmt.Errorf("transfer rewards: %w", err)
	}

	staker.Rewards = 0
	return Transition{Pool: pool, Staker: staker, Claimed: claimed}, nil
}

// resyncAndSettle resyncs the pool and settles the staker against the new accumulator.
func resyncAndSettle(pool model.Pool, staker model.StakerAccount, now uint64) (model.Pool, model.StakerAccount, error) {
	pool, err := Resync(pool, now)
	if err != nil {
		return pool, staker, err
	}
	staker, err = Settle(staker, pool.RewardPerTokenStored)
	if err != nil {
		return pool, staker, err
	}
	return pool, staker, nil
}
