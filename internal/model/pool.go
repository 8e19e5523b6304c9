package model

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// PoolID identifies a staking pool.
type PoolID = uuid.UUID

// Pool is the global accrual state of a staking pool.
type Pool struct {
	ID                   PoolID         `json:"id"`
	Owner                common.Address `json:"owner"`
	StakingToken         common.Address `json:"staking_token"`
	RewardsToken         common.Address `json:"rewards_token"`
	Duration             uint64         `json:"duration,string"`
	TotalSupply          uint64         `json:"total_supply,string"`
	RewardRate           uint64         `json:"reward_rate,string"`
	RewardPerTokenStored uint64         `json:"reward_per_token_stored,string"`
	UpdatedAt            uint64         `json:"updated_at,string"`
	FinishAt             uint64         `json:"finish_at,string"`
}

// StakeVault is the custody account holding staked tokens of the pool.
func (p Pool) StakeVault() AccountID {
	return VaultAccount(p.ID, "stake")
}

// RewardVault is the custody account rewards are paid from.
func (p Pool) RewardVault() AccountID {
	return VaultAccount(p.ID, "rewards")
}
