package rewards

import (
	"fmt"

	"stakingRewards/internal/model"
)

// Settle folds the rewards earned since the staker's last snapshot into its
// unclaimed balance and moves the snapshot to accumulator. On error the staker
// is returned unchanged.
func Settle(staker model.StakerAccount, accumulator uint64) (model.StakerAccount, error) {
	total, err := earned(staker, accumulator)
	if err != nil {
		return staker, err
	}
	staker.Rewards = total
	staker.RewardPerTokenPaid = accumulator
	return staker, nil
}

// Earned returns the unclaimed rewards the staker would hold after an operation at now.
func Earned(pool model.Pool, staker model.StakerAccount, now uint64) (uint64, error) {
	acc, err := RewardPerToken(pool, now)
	if err != nil {
		return 0, err
	}
	return earned(staker, acc)
}

func earned(staker model.StakerAccount, accumulator uint64) (uint64, error) {
	if accumulator < staker.RewardPerTokenPaid {
		return 0, fmt.Errorf("accumulator %d behind staker snapshot %d: %w", accumulator, staker.RewardPerTokenPaid, ErrInvariant)
	}

	delta := accumulator - staker.RewardPerTokenPaid
	accrued, ok := mulDivScale(staker.Amount, delta)
	if !ok {
		return 0, fmt.Errorf("amount %d * delta %d: %w", staker.Amount, delta, ErrMath)
	}
	total, ok := add(staker.Rewards, accrued)
	if !ok {
		return 0, fmt.Errorf("rewards %d + accrued %d: %w", staker.Rewards, accrued, ErrMath)
	}
	return total, nil
}
