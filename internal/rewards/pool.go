package rewards

import (
	"fmt"

	"stakingRewards/internal/model"
)

// RewardPerToken returns the accumulator value the pool would hold at now.
func RewardPerToken(pool model.Pool, now uint64) (uint64, error) {
	if now < pool.UpdatedAt {
		return 0, fmt.Errorf("time %d before last update %d: %w", now, pool.UpdatedAt, ErrInvariant)
	}
	if pool.TotalSupply == 0 {
		return pool.RewardPerTokenStored, nil
	}

	elapsed := now - pool.UpdatedAt
	rewardAdded, ok := mul(pool.RewardRate, elapsed)
	if !ok {
		return 0, fmt.Errorf("reward rate %d * elapsed %d: %w", pool.RewardRate, elapsed, ErrMath)
	}
	scaled, ok := mul(rewardAdded, Scale)
	if !ok {
		return 0, fmt.Errorf("reward added %d * scale: %w", rewardAdded, ErrMath)
	}

	acc, ok := add(pool.RewardPerTokenStored, scaled/pool.TotalSupply)
	if !ok {
		return 0, fmt.Errorf("accumulator %d + %d: %w", pool.RewardPerTokenStored, scaled/pool.TotalSupply, ErrMath)
	}
	return acc, nil
}

// Resync advances the pool accumulator to now. On error the pool is returned
// unchanged.
func Resync(pool model.Pool, now uint64) (model.Pool, error) {
	acc, err := RewardPerToken(pool, now)
	if err != nil {
		return pool, err
	}
	pool.RewardPerTokenStored = acc
	pool.UpdatedAt = now
	return pool, nil
}
